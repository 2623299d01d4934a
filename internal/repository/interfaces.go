// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"
)

// RecordRepository はキーと値のレコードの永続化インターフェース。
// session.Persisterを満たす。
type RecordRepository interface {
	// Load は指定キーの値を取得する。存在しない場合はsession.ErrRecordNotFoundを返す。
	Load(ctx context.Context, key string) ([]byte, error)

	// Save は指定キーの値を上書き保存する。存在しない場合は作成する。
	Save(ctx context.Context, key string, data []byte) error

	// UpdatedAt は指定キーの最終更新日時を返す。
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
}
