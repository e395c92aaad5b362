package quota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/models"
)

// LimitSource loads the storage limit record. It returns
// apperrors.ErrNotConfigured when no record exists.
type LimitSource interface {
	GetLimit(ctx context.Context) (*models.Limit, error)
}

// Policy holds the system-wide storage ceiling.
//
// The limit is loaded from its source and kept for refreshInterval; the first
// read after that reloads it. Refresh forces a reload. A reload that finds no
// record drops the cached value, so a removed limit refuses uploads instead
// of serving the old ceiling. A zero interval reads through on every call.
type Policy struct {
	source          LimitSource
	refreshInterval time.Duration
	now             func() time.Time

	mu       sync.RWMutex
	limit    *models.Limit
	loadedAt time.Time
}

func NewPolicy(source LimitSource, refreshInterval time.Duration) *Policy {
	return &Policy{
		source:          source,
		refreshInterval: refreshInterval,
		now:             time.Now,
	}
}

// Limit returns a copy of the current limit record
func (p *Policy) Limit(ctx context.Context) (*models.Limit, error) {
	p.mu.RLock()
	limit, loadedAt := p.limit, p.loadedAt
	p.mu.RUnlock()

	if limit != nil && p.refreshInterval > 0 && p.now().Sub(loadedAt) < p.refreshInterval {
		cp := *limit
		return &cp, nil
	}
	return p.Refresh(ctx)
}

// CeilingBytes returns the ceiling in bytes, or apperrors.ErrNotConfigured
func (p *Policy) CeilingBytes(ctx context.Context) (int64, error) {
	limit, err := p.Limit(ctx)
	if err != nil {
		return 0, err
	}
	return limit.Bytes(), nil
}

// Refresh reloads the limit from its source
func (p *Policy) Refresh(ctx context.Context) (*models.Limit, error) {
	limit, err := p.source.GetLimit(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotConfigured) {
			p.mu.Lock()
			p.limit = nil
			p.mu.Unlock()
		}
		return nil, err
	}
	if limit == nil {
		return nil, apperrors.ErrNotConfigured
	}

	p.mu.Lock()
	p.limit = limit
	p.loadedAt = p.now()
	p.mu.Unlock()

	cp := *limit
	return &cp, nil
}
