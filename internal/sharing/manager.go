// Package sharing changes who may see a file: the public flag and the list
// of users it is shared with.
package sharing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
)

var tracer = otel.Tracer("sharebox-sharing")

// RecordStore reads and updates file records. Lookups by stored name match
// on the owner as well and fail with apperrors.ErrNotFound for anyone else.
type RecordStore interface {
	FindOwned(ctx context.Context, storedName, ownerID string) (*models.File, error)
	SetVisibility(ctx context.Context, storedName, ownerID string, public bool) (*models.File, error)
	ReplaceShares(ctx context.Context, storedName, ownerID string, shares []models.Share) (*models.File, error)
	FindSharedWith(ctx context.Context, email string) ([]*models.File, error)
}

// IdentityResolver maps emails to registered users
type IdentityResolver interface {
	ResolveEmails(ctx context.Context, emails []string) ([]models.User, error)
}

// ShareResult is the outcome of replacing a share list
type ShareResult struct {
	File *models.File
	// Unresolved lists the requested emails that match no user
	Unresolved []string
}

// Manager owns visibility and share list changes
type Manager struct {
	records    RecordStore
	identities IdentityResolver
	log        *logger.Logger
}

func NewManager(records RecordStore, identities IdentityResolver, log *logger.Logger) *Manager {
	return &Manager{
		records:    records,
		identities: identities,
		log:        log.Named("sharing"),
	}
}

// SetVisibility marks an owned file public or private
func (m *Manager) SetVisibility(ctx context.Context, storedName, ownerID string, public bool) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "sharing.set_visibility",
		trace.WithAttributes(
			attribute.String("stored_name", storedName),
			attribute.Bool("anyone", public),
		),
	)
	defer span.End()

	file, err := m.records.SetVisibility(ctx, storedName, ownerID, public)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	m.log.Info("visibility changed",
		zap.String("stored_name", storedName),
		zap.String("owner_id", ownerID),
		zap.Bool("anyone", public),
	)
	return file, nil
}

// ReplaceShares replaces the share list of an owned file with the users
// behind the comma separated emails. Emails that match no user are skipped
// and reported in the result. If none match, the list is left as it was and
// apperrors.ErrNoMatchingUsers is returned.
func (m *Manager) ReplaceShares(ctx context.Context, storedName, ownerID, emailList string) (*ShareResult, error) {
	ctx, span := tracer.Start(ctx, "sharing.replace_shares",
		trace.WithAttributes(attribute.String("stored_name", storedName)),
	)
	defer span.End()

	if _, err := m.records.FindOwned(ctx, storedName, ownerID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	candidates := SplitEmails(emailList)
	if len(candidates) == 0 {
		return nil, apperrors.ErrNoMatchingUsers
	}

	users, err := m.identities.ResolveEmails(ctx, candidates)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to resolve emails: %w", err)
	}

	shares, unresolved := match(candidates, users)
	span.SetAttributes(
		attribute.Int("resolved_count", len(shares)),
		attribute.Int("unresolved_count", len(unresolved)),
	)
	if len(shares) == 0 {
		m.log.Info("no share recipients resolved",
			zap.String("stored_name", storedName),
			zap.Strings("unresolved", unresolved),
		)
		return nil, apperrors.ErrNoMatchingUsers
	}

	file, err := m.records.ReplaceShares(ctx, storedName, ownerID, shares)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	m.log.Info("share list replaced",
		zap.String("stored_name", storedName),
		zap.Int("recipients", len(shares)),
		zap.Strings("unresolved", unresolved),
	)
	return &ShareResult{File: file, Unresolved: unresolved}, nil
}

// FindSharedWith returns every file shared with email, whoever owns it
func (m *Manager) FindSharedWith(ctx context.Context, email string) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "sharing.find_shared_with")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", apperrors.ErrBadRequest)
	}

	files, err := m.records.FindSharedWith(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return files, nil
}

// SplitEmails splits a comma separated list, dropping blanks and
// case-insensitive duplicates while keeping the first-seen order
func SplitEmails(list string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(list, ",") {
		email := strings.TrimSpace(part)
		if email == "" {
			continue
		}
		key := strings.ToLower(email)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, email)
	}
	return out
}

// match pairs candidates with resolved users in candidate order
func match(candidates []string, users []models.User) ([]models.Share, []string) {
	byEmail := make(map[string]models.User, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}

	var shares []models.Share
	var unresolved []string
	added := map[string]bool{}
	for _, email := range candidates {
		u, ok := byEmail[strings.ToLower(email)]
		if !ok {
			unresolved = append(unresolved, email)
			continue
		}
		if added[u.ID] {
			continue
		}
		added[u.ID] = true
		shares = append(shares, models.Share{UserID: u.ID, Email: u.Email})
	}
	return shares, unresolved
}
