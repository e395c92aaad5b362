package storage

import (
	"context"
	"fmt"
)

// users is owned by the auth service; it is created here only so a fresh
// database can serve email resolution. Email columns compare case-insensitively.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) COLLATE utf8mb4_general_ci NOT NULL,
		UNIQUE KEY uk_users_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		stored_name VARCHAR(128) NOT NULL,
		file_name VARCHAR(512) NOT NULL,
		type VARCHAR(255) NOT NULL DEFAULT '',
		size BIGINT NOT NULL,
		checksum CHAR(64) NOT NULL DEFAULT '',
		owner_id VARCHAR(64) NOT NULL,
		anyone BOOLEAN NOT NULL DEFAULT FALSE,
		folder_id VARCHAR(64) NULL,
		is_trashed BOOLEAN NOT NULL DEFAULT FALSE,
		last_access_time DATETIME(3) NULL,
		last_modified_by VARCHAR(255) NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uk_files_stored_name (stored_name),
		KEY idx_files_owner (owner_id, is_trashed),
		CONSTRAINT chk_files_size CHECK (size >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS file_shares (
		file_id VARCHAR(36) NOT NULL,
		position INT NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		email VARCHAR(255) COLLATE utf8mb4_general_ci NOT NULL,
		PRIMARY KEY (file_id, position),
		KEY idx_file_shares_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS limits (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		total_mb BIGINT NOT NULL,
		updated_at DATETIME(3) NOT NULL
	)`,
}

// EnsureSchema creates missing tables
func (tc *TiDBClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := tc.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
