// Package storage はセッションレコードのファイル永続化を提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/hitoshi/taskman/internal/session"
)

// validKey はレコードのキーとして許可する文字列。キーはそのままファイル名になる。
var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore はディレクトリ配下に1キー1ファイル（<key>.json）でレコードを保存する。
type FileStore struct {
	dir string
}

// NewFileStore はFileStoreを生成する。ディレクトリは最初の保存時に作成される。
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path はキーに対応するファイルパスを返す。
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load はキーに対応するレコードを読み込む。
// ファイルが存在しない場合はsession.ErrRecordNotFoundを返す。
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Save はレコードをアトミックに書き込む。
// 同じディレクトリの一時ファイルに書き込み、fsyncしてからリネームするため、
// 読み手が途中までの内容を見ることはない。
// トークンを含むため、ディレクトリは0700、ファイルは0600で作成する。
func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating storage directory %s: %w", s.dir, err)
	}

	path := s.Path(key)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// compile-time interface check
var _ session.Persister = (*FileStore)(nil)
