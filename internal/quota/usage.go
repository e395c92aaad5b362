// Package quota decides whether an upload fits in its owner's storage quota
// and stores it without leaving a blob behind when it does not.
package quota

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sharebox-quota")

// UsageSource sums the sizes of an owner's file records
type UsageSource interface {
	SumSizeByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Accountant computes how many bytes a user currently stores.
// Trashed files count: they still occupy storage until deleted.
type Accountant struct {
	source UsageSource
}

func NewAccountant(source UsageSource) *Accountant {
	return &Accountant{source: source}
}

// Usage returns the bytes used by ownerID, read fresh from the record store
func (a *Accountant) Usage(ctx context.Context, ownerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "quota.usage",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	used, err := a.source.SumSizeByOwner(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to compute usage: %w", err)
	}

	span.SetAttributes(attribute.Int64("used_bytes", used))
	return used, nil
}
