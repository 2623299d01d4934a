package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskman/internal/apiclient"
	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/config"
	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/handler"
	"github.com/hitoshi/taskman/internal/logger"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
	"github.com/hitoshi/taskman/internal/session"
	"github.com/hitoshi/taskman/internal/storage"
	"github.com/hitoshi/taskman/internal/task"
)

// IOStreams はコマンドの入出力先。
// Outにはコマンドの結果、Errにはログ・プロンプト・遷移先を出力する。
type IOStreams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams はプロセスの標準入出力を返す。
func StdStreams() IOStreams {
	return IOStreams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定が読めなくてもエラーをログに残せるようにする
		logger.SetupDefault(w, slog.LevelWarn)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l := logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析して実行する。
// argsにはos.Args[1:]を渡す。ctxがキャンセルされると待機中の処理は中断される。
func Run(ctx context.Context, streams IOStreams, args []string) error {
	cfg, l, err := Init(streams.Err)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	a := &application{cfg: cfg, logger: l, streams: streams}
	defer a.close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	return root.ExecuteContext(ctx)
}

// application はコマンド間で共有する状態。runtimeは必要になった時点で構築する。
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	streams IOStreams

	output string
	rt     *runtime
}

// runtime はセッションとAPIクライアントを使うコマンドの依存関係。
type runtime struct {
	store    *session.Store
	api      *apiclient.Client
	auth     *auth.Service
	tasks    *task.Service
	registry *prometheus.Registry
	nav      *cliNavigator

	closers []func() error
}

// runtime は依存関係をワイヤリングし、永続化済みのセッションを復元する。
// 2回目以降は同じruntimeを返す。
func (a *application) runtime(ctx context.Context) (*runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}

	rt := &runtime{nav: newCLINavigator(a.streams.Err)}

	// 1. 永続化先の初期化
	persister, err := a.openPersister(ctx, rt)
	if err != nil {
		rt.close(a.logger)
		return nil, err
	}

	// 2. セッションの復元（ガードのマウントより前に行う）
	rt.store = session.NewStore(persister, a.logger)
	if err := rt.store.Restore(ctx); err != nil {
		rt.close(a.logger)
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	// 3. メトリクス
	rt.registry = prometheus.NewRegistry()
	collector := metrics.NewCollector(rt.registry)
	if a.cfg.MetricsAddr != "" {
		if err := a.startMetricsServer(rt); err != nil {
			rt.close(a.logger)
			return nil, err
		}
	}

	// 4. HTTPクライアントとドメインサービス
	rt.api, err = apiclient.New(apiclient.Config{
		BaseURL:   a.cfg.APIURL,
		Timeout:   a.cfg.HTTPTimeout,
		RateLimit: a.cfg.RateLimit,
		RateBurst: a.cfg.RateBurst,
	}, rt.store, collector, a.logger)
	if err != nil {
		rt.close(a.logger)
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	rt.auth = auth.NewService(rt.api, rt.store, collector, a.logger)
	rt.tasks = task.NewService(rt.api, security.NewContentSanitizer(), a.logger)

	a.rt = rt
	return rt, nil
}

// openPersister は設定に応じてファイルまたはPostgreSQLのPersisterを返す。
func (a *application) openPersister(ctx context.Context, rt *runtime) (session.Persister, error) {
	if !a.cfg.UseDatabaseStorage() {
		a.logger.Debug("using file session storage", slog.String("dir", a.cfg.StorageDir))
		return storage.NewFileStore(a.cfg.StorageDir), nil
	}

	db, err := database.Connect(ctx, a.cfg.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session database: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	a.logger.Debug("using database session storage",
		slog.String("database_url", maskDatabaseURL(a.cfg.StorageDSN)),
	)
	return repository.NewPostgresRecordRepo(db), nil
}

// startMetricsServer はコマンドの実行中だけ/metricsを公開するサーバーを起動する。
func (a *application) startMetricsServer(rt *runtime) error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics address: %w", err)
	}

	srv := newLoopbackServer(&handler.RouterDeps{
		Metrics: metrics.Handler(rt.registry),
		Logger:  a.logger,
	})
	go serve(srv, ln, a.logger)

	a.logger.Info("metrics server started", slog.String("addr", ln.Addr().String()))
	rt.closers = append(rt.closers, func() error { return shutdown(srv) })
	return nil
}

func (a *application) close() {
	if a.rt != nil {
		a.rt.close(a.logger)
	}
}

// close は後から追加したものから順に解放する。
func (rt *runtime) close(l *slog.Logger) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			l.Warn("failed to release resource", slog.String("error", err.Error()))
		}
	}
	rt.closers = nil
}

// newLoopbackServer はハンドラー構成からHTTPサーバーを生成する。
func newLoopbackServer(deps *handler.RouterDeps) *http.Server {
	return &http.Server{
		Handler:           handler.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func serve(srv *http.Server, ln net.Listener, l *slog.Logger) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server listen error", slog.String("error", err.Error()))
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// runMigrate はセッション用データベースのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, l *slog.Logger) error {
	if !cfg.UseDatabaseStorage() {
		return errors.New("TASKMAN_STORAGE_DSN is not set")
	}

	l.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.StorageDSN)),
	)

	if err := database.RunMigrations(cfg.StorageDSN); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	l.Info("database migrations completed successfully")
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
