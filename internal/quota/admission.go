package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
	"github.com/maneesh/sharebox/internal/payload"
)

const (
	defaultCleanupTimeout = 10 * time.Second
	// one retry, then the orphan is logged and left
	cleanupAttempts = 2
)

// BlobStore holds file content. PutBlob assigns the key and returns it even
// when the write fails, so a partial object can be removed.
type BlobStore interface {
	PutBlob(ctx context.Context, r io.Reader, contentType, ext string) (string, error)
	DeleteBlob(ctx context.Context, key string) error
}

// RecordStore persists new file records
type RecordStore interface {
	CreateFile(ctx context.Context, file *models.File) error
}

// Locker serializes uploads of one owner. Acquire fails with
// apperrors.ErrUploadBusy when the owner's lock stays held.
type Locker interface {
	Acquire(ctx context.Context, ownerID string) (func(context.Context) error, error)
}

// Upload is an incoming file waiting for admission
type Upload struct {
	OwnerID     string
	FileName    string
	ContentType string
	// Extension of the client's file name, kept on the storage key
	Extension string
	FolderID  *string
	// DeclaredSize is what the client claims; it is logged, never trusted
	DeclaredSize int64
	Body         io.Reader
}

// Controller admits or rejects uploads against the quota ceiling
type Controller struct {
	policy         *Policy
	accountant     *Accountant
	blobs          BlobStore
	records        RecordStore
	locker         Locker
	cleanupTimeout time.Duration
	log            *logger.Logger
	now            func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithLocker serializes uploads per owner through l
func WithLocker(l Locker) Option {
	return func(c *Controller) {
		c.locker = l
	}
}

// WithCleanupTimeout bounds the time spent deleting a rejected blob
func WithCleanupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cleanupTimeout = d
		}
	}
}

func NewController(policy *Policy, accountant *Accountant, blobs BlobStore, records RecordStore, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		policy:         policy,
		accountant:     accountant,
		blobs:          blobs,
		records:        records,
		cleanupTimeout: defaultCleanupTimeout,
		log:            log.Named("admission"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Admit stores up if it fits in its owner's remaining quota.
//
// Usage is read before any payload byte is consumed and compared again
// against the measured size once the blob is written. A rejected or failed
// upload leaves neither a record nor, cleanup permitting, a blob. Without a
// Locker, concurrent uploads by the same owner can overshoot the ceiling by
// at most one upload each.
func (c *Controller) Admit(ctx context.Context, up Upload) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "quota.admit",
		trace.WithAttributes(
			attribute.String("owner_id", up.OwnerID),
			attribute.Int64("declared_size", up.DeclaredSize),
		),
	)
	defer span.End()

	log := c.log.With(zap.String("owner_id", up.OwnerID), zap.String("file_name", up.FileName))

	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, up.OwnerID)
		switch {
		case err == nil:
			defer func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cleanupTimeout)
				defer cancel()
				if err := release(rctx); err != nil {
					log.Warn("failed to release upload lock", zap.Error(err))
				}
			}()
		case errors.Is(err, apperrors.ErrUploadBusy):
			uploadsTotal.WithLabelValues(resultBusy).Inc()
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// the two checks below still bound the overshoot
			log.Warn("upload lock unavailable, admitting without it", zap.Error(err))
		}
	}

	ceiling, err := c.policy.CeilingBytes(ctx)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, apperrors.ErrNotConfigured) {
			uploadsTotal.WithLabelValues(resultNotConfigured).Inc()
			log.Error("upload refused, storage limit not set")
		} else {
			uploadsTotal.WithLabelValues(resultError).Inc()
		}
		return nil, err
	}

	used, err := c.accountant.Usage(ctx, up.OwnerID)
	if err != nil {
		span.RecordError(err)
		uploadsTotal.WithLabelValues(resultError).Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("ceiling_bytes", ceiling),
		attribute.Int64("used_bytes", used),
	)

	if used >= ceiling {
		uploadsTotal.WithLabelValues(resultQuotaExceeded).Inc()
		log.Info("upload rejected before transfer", zap.Int64("used", used), zap.Int64("ceiling", ceiling))
		return nil, fmt.Errorf("%w: %d of %d bytes used", apperrors.ErrQuotaExceeded, used, ceiling)
	}

	// Reading one byte past the remaining space is enough to prove the
	// upload does not fit.
	meter := payload.NewMeter(up.Body, ceiling-used+1)
	key, err := c.blobs.PutBlob(ctx, meter, up.ContentType, up.Extension)
	if err != nil {
		span.RecordError(err)
		uploadsTotal.WithLabelValues(resultBlobWrite).Inc()
		log.Error("failed to write blob", zap.String("stored_name", key), zap.Error(err))
		if key != "" {
			c.discard(ctx, key, log)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBlobWrite, err)
	}

	size := meter.Size()
	span.SetAttributes(
		attribute.String("stored_name", key),
		attribute.Int64("actual_size", size),
	)
	if up.DeclaredSize > 0 && up.DeclaredSize != size {
		log.Debug("declared size differs from payload", zap.Int64("declared", up.DeclaredSize), zap.Int64("actual", size))
	}

	if used+size > ceiling {
		uploadsTotal.WithLabelValues(resultQuotaExceeded).Inc()
		log.Info("upload rejected after transfer",
			zap.Int64("used", used),
			zap.Int64("size", size),
			zap.Int64("ceiling", ceiling),
		)
		c.discard(ctx, key, log)
		return nil, fmt.Errorf("%w: %d bytes used, upload needs more than the %d remaining",
			apperrors.ErrQuotaExceeded, used, ceiling-used)
	}

	file := &models.File{
		ID:         uuid.New().String(),
		StoredName: key,
		FileName:   up.FileName,
		Type:       up.ContentType,
		Size:       size,
		Checksum:   meter.Checksum(),
		OwnerID:    up.OwnerID,
		Anyone:     false,
		Shared:     []models.Share{},
		FolderID:   up.FolderID,
		CreatedAt:  c.now().UTC(),
	}

	if err := c.records.CreateFile(ctx, file); err != nil {
		span.RecordError(err)
		uploadsTotal.WithLabelValues(resultMetadataPersist).Inc()
		log.Error("failed to persist file record", zap.String("stored_name", key), zap.Error(err))
		c.discard(ctx, key, log)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMetadataPersist, err)
	}

	uploadsTotal.WithLabelValues(resultAccepted).Inc()
	uploadedBytesTotal.Add(float64(size))
	log.Info("upload accepted",
		zap.String("file_id", file.ID),
		zap.String("stored_name", key),
		zap.Int64("size", size),
		zap.Int64("used_after", used+size),
	)
	return file, nil
}

// discard deletes a blob that must not outlive this admission. It runs even
// if the caller has gone away, retries once, and then gives up with a log line.
func (c *Controller) discard(ctx context.Context, key string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cleanupTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= cleanupAttempts; attempt++ {
		if err = c.blobs.DeleteBlob(ctx, key); err == nil {
			blobCleanupsTotal.WithLabelValues("deleted").Inc()
			log.Debug("blob deleted", zap.String("stored_name", key))
			return
		}
		log.Warn("failed to delete blob", zap.String("stored_name", key), zap.Int("attempt", attempt), zap.Error(err))
	}

	blobCleanupsTotal.WithLabelValues("failed").Inc()
	log.Error("giving up on blob deletion, object is orphaned", zap.String("stored_name", key), zap.Error(err))
}
