// Package session はログイン中のユーザーを表すセッション状態を管理する。
//
// Storeはプロセス内で唯一のセッションの保持者であり、トークンとプロフィールの
// 変更はすべてStoreの操作を経由する。変更は戻る前に永続化され、
// 登録されたリスナーへ同期的に通知される。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// StorageKey は永続化レコードのキー。
const StorageKey = "auth-storage"

// ErrRecordNotFound は永続化レコードが存在しないことを表す。
// Persisterの実装は未保存の場合にこのエラーを返す。
var ErrRecordNotFound = errors.New("session record not found")

// Persister はセッションレコードの永続化先のインターフェース。
// ファイルとPostgreSQLの実装がある。
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Snapshot はある時点のセッション状態のコピー。
type Snapshot struct {
	Token string
	User  *model.Profile
}

// HasToken はトークンが存在するかを返す。
func (s Snapshot) HasToken() bool {
	return s.Token != ""
}

// Authenticated はトークンとプロフィールの両方が存在するかを返す。
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Listener はセッション変更時に呼ばれるコールバック。
type Listener func(Snapshot)

// Store はセッション状態の唯一の保持者。
type Store struct {
	persister Persister
	logger    *slog.Logger
	timeout   time.Duration

	// notifyMu は変更からリスナーへの通知までを直列化し、変更順に通知する
	notifyMu sync.Mutex

	mu    sync.Mutex
	token string
	user  *model.Profile

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewStore は空のStoreを生成する。永続化済みの状態を読み込むにはRestoreを呼ぶ。
func NewStore(persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persister: persister,
		logger:    logger,
		timeout:   5 * time.Second,
		listeners: make(map[int]Listener),
	}
}

// Restore は永続化レコードからセッションを復元する。
// レコードが存在しない場合は空のセッションのまま正常終了する。
// ガードをマウントする前に1回だけ呼ぶこと。
func (s *Store) Restore(ctx context.Context) error {
	data, err := s.persister.Load(ctx, StorageKey)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session record: %w", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return fmt.Errorf("failed to decode session record: %w", err)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.token = rec.State.token()
	s.user = cloneProfile(rec.State.User)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debug("session restored",
		slog.Bool("has_token", snap.HasToken()),
		slog.Bool("has_user", snap.User != nil),
	)
	s.notify(snap)
	return nil
}

// Snapshot は現在のセッション状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Token は現在のトークンを返す。未ログインの場合は空文字列を返す。
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken はトークンを無条件に上書きし、永続化する。
// トークンの形式は検証しない。
func (s *Store) SetToken(token string) error {
	return s.mutate("set_token", func() {
		s.token = token
	})
}

// SetUser はプロフィールを無条件に上書きし、永続化する。
func (s *Store) SetUser(user model.Profile) error {
	return s.mutate("set_user", func() {
		s.user = &user
	})
}

// Commit はトークンとプロフィールを1回の論理的な更新として設定する。
// userがnilの場合、プロフィールは未設定になる。
func (s *Store) Commit(token string, user *model.Profile) error {
	return s.mutate("commit", func() {
		s.token = token
		s.user = cloneProfile(user)
	})
}

// Logout はトークンとプロフィールの両方を破棄し、永続化する。
// 既に空の場合も同じ空の状態を書き込むだけで、何度呼んでも結果は変わらない。
func (s *Store) Logout() error {
	return s.mutate("logout", func() {
		s.token = ""
		s.user = nil
	})
}

// Subscribe はセッション変更時に呼ばれるリスナーを登録する。
// 戻り値の関数を呼ぶと登録が解除される。
// リスナーはStoreのロック外で同期的に呼ばれるため、リスナー内からStoreを読んでよい。
// 通知は変更の順に1つずつ行われる。リスナー内からStoreを変更してはならない。
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// mutate はロック下で状態を変更して永続化し、ロック解放後にリスナーへ通知する。
// 別のgoroutineの変更は前の変更の通知が終わるまで待つ。
// 永続化に失敗してもメモリ上の変更は維持する（ログアウトを確実に反映するため）。
func (s *Store) mutate(op string, apply func()) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	apply()
	snap := s.snapshotLocked()
	err := s.persistLocked(snap)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist session",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
	s.notify(snap)

	if err != nil {
		return fmt.Errorf("session %s: %w", op, err)
	}
	return nil
}

func (s *Store) persistLocked(snap Snapshot) error {
	data, err := encodeRecord(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.persister.Save(ctx, StorageKey, data)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Token: s.token, User: cloneProfile(s.user)}
}

func (s *Store) notify(snap Snapshot) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.listenersMu.Unlock()

	// 登録順に呼ぶ
	slices.Sort(ids)
	for _, id := range ids {
		s.listenersMu.Lock()
		fn, ok := s.listeners[id]
		s.listenersMu.Unlock()
		if !ok {
			continue
		}
		fn(Snapshot{Token: snap.Token, User: cloneProfile(snap.User)})
	}
}

func cloneProfile(p *model.Profile) *model.Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
