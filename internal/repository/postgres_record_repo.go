package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/session"
)

// PostgresRecordRepo はPostgreSQLのclient_storageテーブルを使用したレコードリポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// Load は指定キーの値を取得する。
func (r *PostgresRecordRepo) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	return value, nil
}

// Save は指定キーの値をUPSERTする。
func (r *PostgresRecordRepo) Save(ctx context.Context, key string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_storage (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(data), // []byteのままではbyteaとして送られるため文字列で渡す
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// UpdatedAt は指定キーの最終更新日時を返す。
func (r *PostgresRecordRepo) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT updated_at FROM client_storage WHERE key = $1`,
		key,
	).Scan(&updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, session.ErrRecordNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load record timestamp: %w", err)
	}

	return updatedAt, nil
}

// compile-time interface check
var (
	_ RecordRepository  = (*PostgresRecordRepo)(nil)
	_ session.Persister = (*PostgresRecordRepo)(nil)
)
