package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/logger"
)

var tracer = otel.Tracer("sharebox-storage")

// DefaultPartSize is the multipart chunk used for streamed uploads. Each
// upload in flight holds one part in memory.
const DefaultPartSize = 16 << 20

// MinioOptions configures the blob store
type MinioOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	// Region skips the bucket location lookup when set
	Region string
	// PartSize bounds the buffer of a streamed upload, 0 means DefaultPartSize
	PartSize uint64
}

// MinioClient stores uploaded file content, one object per file
type MinioClient struct {
	client     *minio.Client
	bucketName string
	partSize   uint64
}

// NewMinioClient initializes a new MinIO client and ensures the bucket exists
func NewMinioClient(ctx context.Context, opts MinioOptions, log *logger.Logger) (*MinioClient, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Info("creating bucket", zap.String("bucket", opts.BucketName))
		if err := client.MakeBucket(ctx, opts.BucketName, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	partSize := opts.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}

	return &MinioClient{
		client:     client,
		bucketName: opts.BucketName,
		partSize:   partSize,
	}, nil
}

// NewStoredName generates an object key, keeping the original extension
func NewStoredName(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return uuid.New().String() + ext
}

// PutBlob streams r into a new object and returns its key. The key is
// returned with the error as well, so callers can clean up a partial write.
func (mc *MinioClient) PutBlob(ctx context.Context, r io.Reader, contentType, ext string) (string, error) {
	key := NewStoredName(ext)
	ctx, span := tracer.Start(ctx, "minio.put_blob",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	// The length is unknown until the stream ends, so minio-go uploads in
	// parts and buffers one part at a time.
	info, err := mc.client.PutObject(ctx, mc.bucketName, key, r, -1, mc.putOptions(contentType))
	if err != nil {
		span.RecordError(err)
		return key, fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Int64("size_bytes", info.Size))
	return key, nil
}

func (mc *MinioClient) putOptions(contentType string) minio.PutObjectOptions {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    mc.partSize,
	}
}

// DeleteBlob deletes an object. Deleting a missing object is not an error.
func (mc *MinioClient) DeleteBlob(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete_blob",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// Ping checks the bucket is reachable
func (mc *MinioClient) Ping(ctx context.Context) error {
	if _, err := mc.client.BucketExists(ctx, mc.bucketName); err != nil {
		return fmt.Errorf("minio unreachable: %w", err)
	}
	return nil
}
