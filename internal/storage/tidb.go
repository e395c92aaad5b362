package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/models"
)

const fileColumns = `id, stored_name, file_name, type, size, checksum, owner_id, anyone, folder_id, is_trashed, last_access_time, last_modified_by, created_at`

// TiDBClient wraps TiDB operations with tracing
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &TiDBClient{db: db}, nil
}

// NewTiDBClientFromDB wraps an already opened database
func NewTiDBClientFromDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// Ping checks the database connection
func (tc *TiDBClient) Ping(ctx context.Context) error {
	return tc.db.PingContext(ctx)
}

// CreateFile inserts a file record. The share list of a new file is empty.
func (tc *TiDBClient) CreateFile(ctx context.Context, file *models.File) error {
	ctx, span := tracer.Start(ctx, "tidb.create_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("stored_name", file.StoredName),
			attribute.Int64("file_size", file.Size),
		),
	)
	defer span.End()

	query := `INSERT INTO files (` + fileColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		file.ID, file.StoredName, file.FileName, file.Type, file.Size, file.Checksum, file.OwnerID,
		file.Anyone, nullString(file.FolderID), file.IsTrashed, file.LastAccessTime,
		nullIfEmpty(file.LastModifiedBy), file.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

// SumSizeByOwner returns the total size of every file the owner has,
// trashed files included
func (tc *TiDBClient) SumSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "tidb.sum_size_by_owner",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	var total int64
	err := tc.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM files WHERE owner_id = ?`, ownerID,
	).Scan(&total)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}

	span.SetAttributes(attribute.Int64("used_bytes", total))
	return total, nil
}

// ListByOwner returns the owner's files that are not in the trash
func (tc *TiDBClient) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_by_owner",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	files, err := tc.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE owner_id = ? AND is_trashed = FALSE ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// FindOwned returns the file with storedName if ownerID owns it
func (tc *TiDBClient) FindOwned(ctx context.Context, storedName, ownerID string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_owned",
		trace.WithAttributes(
			attribute.String("stored_name", storedName),
			attribute.String("owner_id", ownerID),
		),
	)
	defer span.End()

	file, err := tc.queryOne(ctx,
		`SELECT `+fileColumns+` FROM files WHERE stored_name = ? AND owner_id = ?`,
		storedName, ownerID,
	)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		span.RecordError(err)
	}
	return file, err
}

// SetVisibility sets the public flag of an owned file
func (tc *TiDBClient) SetVisibility(ctx context.Context, storedName, ownerID string, public bool) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.set_visibility",
		trace.WithAttributes(
			attribute.String("stored_name", storedName),
			attribute.Bool("anyone", public),
		),
	)
	defer span.End()

	_, err := tc.db.ExecContext(ctx,
		`UPDATE files SET anyone = ? WHERE stored_name = ? AND owner_id = ?`,
		public, storedName, ownerID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update visibility: %w", err)
	}

	return tc.FindOwned(ctx, storedName, ownerID)
}

// ReplaceShares swaps the whole share list of an owned file in one transaction
func (tc *TiDBClient) ReplaceShares(ctx context.Context, storedName, ownerID string, shares []models.Share) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.replace_shares",
		trace.WithAttributes(
			attribute.String("stored_name", storedName),
			attribute.Int("share_count", len(shares)),
		),
	)
	defer span.End()

	tx, err := tc.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM files WHERE stored_name = ? AND owner_id = ? FOR UPDATE`,
		storedName, ownerID,
	).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock file: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_shares WHERE file_id = ?`, fileID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to clear shares: %w", err)
	}

	if len(shares) > 0 {
		placeholders := make([]string, 0, len(shares))
		args := make([]any, 0, len(shares)*4)
		for i, s := range shares {
			placeholders = append(placeholders, "(?, ?, ?, ?)")
			args = append(args, fileID, i, s.UserID, s.Email)
		}
		query := `INSERT INTO file_shares (file_id, position, user_id, email) VALUES ` + strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to insert shares: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit shares: %w", err)
	}

	return tc.FindOwned(ctx, storedName, ownerID)
}

// FindSharedWith returns every file whose share list contains email
func (tc *TiDBClient) FindSharedWith(ctx context.Context, email string) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_shared_with")
	defer span.End()

	files, err := tc.queryFiles(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id IN (SELECT file_id FROM file_shares WHERE email = ?) ORDER BY created_at DESC`,
		email,
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// Rename changes the visible name of an owned file and stamps the audit fields
func (tc *TiDBClient) Rename(ctx context.Context, fileID, ownerID, newName, actor string, at time.Time) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "tidb.rename",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	_, err := tc.db.ExecContext(ctx,
		`UPDATE files SET file_name = ?, last_access_time = ?, last_modified_by = ? WHERE id = ? AND owner_id = ?`,
		newName, at, actor, fileID, ownerID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}

	file, err := tc.queryOne(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ? AND owner_id = ?`,
		fileID, ownerID,
	)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		span.RecordError(err)
	}
	return file, err
}

// GetLimit returns the storage limit record
func (tc *TiDBClient) GetLimit(ctx context.Context) (*models.Limit, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_limit")
	defer span.End()

	var limit models.Limit
	err := tc.db.QueryRowContext(ctx,
		`SELECT id, total_mb, updated_at FROM limits ORDER BY id LIMIT 1`,
	).Scan(&limit.ID, &limit.TotalMB, &limit.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperrors.ErrNotConfigured
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query limit: %w", err)
	}

	span.SetAttributes(attribute.Int64("total_mb", limit.TotalMB))
	return &limit, nil
}

// SeedLimit creates the limit record unless one already exists.
// It reports whether a record was created.
func (tc *TiDBClient) SeedLimit(ctx context.Context, totalMB int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "tidb.seed_limit")
	defer span.End()

	res, err := tc.db.ExecContext(ctx,
		`INSERT INTO limits (total_mb, updated_at) SELECT ?, ? FROM DUAL WHERE NOT EXISTS (SELECT 1 FROM limits)`,
		totalMB, time.Now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to seed limit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// ResolveEmails returns the users registered under any of emails
func (tc *TiDBClient) ResolveEmails(ctx context.Context, emails []string) ([]models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.resolve_emails",
		trace.WithAttributes(attribute.Int("email_count", len(emails))),
	)
	defer span.End()

	if len(emails) == 0 {
		return nil, nil
	}

	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}
	query := `SELECT id, name, email FROM users WHERE email IN (?` + strings.Repeat(", ?", len(emails)-1) + `)`

	rows, err := tc.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	span.SetAttributes(attribute.Int("resolved_count", len(users)))
	return users, nil
}

func (tc *TiDBClient) queryOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	files, err := tc.queryFiles(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return files[0], nil
}

// queryFiles runs a file query and attaches the share list of every result
func (tc *TiDBClient) queryFiles(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := tc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	if err := tc.attachShares(ctx, files); err != nil {
		return nil, err
	}
	return files, nil
}

func (tc *TiDBClient) attachShares(ctx context.Context, files []*models.File) error {
	if len(files) == 0 {
		return nil
	}

	byID := make(map[string]*models.File, len(files))
	args := make([]any, len(files))
	for i, f := range files {
		f.Shared = []models.Share{}
		byID[f.ID] = f
		args[i] = f.ID
	}

	query := `SELECT file_id, user_id, email FROM file_shares WHERE file_id IN (?` +
		strings.Repeat(", ?", len(files)-1) + `) ORDER BY file_id, position`
	rows, err := tc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID string
		var s models.Share
		if err := rows.Scan(&fileID, &s.UserID, &s.Email); err != nil {
			return fmt.Errorf("failed to scan share: %w", err)
		}
		if f, ok := byID[fileID]; ok {
			f.Shared = append(f.Shared, s)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating shares: %w", err)
	}
	return nil
}

func scanFile(rows *sql.Rows) (*models.File, error) {
	var (
		f          models.File
		folderID   sql.NullString
		lastAccess sql.NullTime
		lastName   sql.NullString
	)
	err := rows.Scan(
		&f.ID,
		&f.StoredName,
		&f.FileName,
		&f.Type,
		&f.Size,
		&f.Checksum,
		&f.OwnerID,
		&f.Anyone,
		&folderID,
		&f.IsTrashed,
		&lastAccess,
		&lastName,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	if folderID.Valid {
		f.FolderID = &folderID.String
	}
	if lastAccess.Valid {
		f.LastAccessTime = &lastAccess.Time
	}
	f.LastModifiedBy = lastName.String
	return &f, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
