package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL はAPIのベースURLが未設定の場合に使用するローカル開発用の値。
const DefaultAPIURL = "http://localhost:8000/api"

// Config はクライアント全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIURL      string
	HTTPTimeout time.Duration

	// Rate Limit（クライアント側のリクエスト送信レート）
	RateLimit float64 // req/sec
	RateBurst int

	// Storage
	StorageDir string // ファイルバックエンドの保存先ディレクトリ
	StorageDSN string // 設定された場合はPostgreSQLバックエンドを使用する

	// OAuth callback
	CallbackAddr    string
	CallbackTimeout time.Duration

	// Metrics
	MetricsAddr string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須の環境変数はなく、未設定の項目はデフォルト値になる。
// 値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIURL = strings.TrimRight(getEnvString("TASKMAN_API_URL", getEnvString("NEXT_PUBLIC_API_URL", DefaultAPIURL)), "/")
	if err := validateBaseURL(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid TASKMAN_API_URL: %w", err)
	}

	cfg.HTTPTimeout = getEnvDuration("TASKMAN_HTTP_TIMEOUT", 15*time.Second)
	cfg.RateLimit = getEnvFloat("TASKMAN_RATE_LIMIT", 10)
	cfg.RateBurst = getEnvInt("TASKMAN_RATE_BURST", 20)
	cfg.StorageDir = getEnvString("TASKMAN_STORAGE_DIR", defaultStorageDir())
	cfg.StorageDSN = getEnvString("TASKMAN_STORAGE_DSN", "")
	cfg.CallbackAddr = getEnvString("TASKMAN_CALLBACK_ADDR", "localhost:3000")
	cfg.CallbackTimeout = getEnvDuration("TASKMAN_CALLBACK_TIMEOUT", 5*time.Minute)
	cfg.MetricsAddr = getEnvString("TASKMAN_METRICS_ADDR", "")
	cfg.LogLevel = strings.ToLower(getEnvString("TASKMAN_LOG_LEVEL", "warn"))

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("TASKMAN_RATE_LIMIT must be positive, got %v", cfg.RateLimit)
	}
	if cfg.RateBurst < 1 {
		return nil, fmt.Errorf("TASKMAN_RATE_BURST must be at least 1, got %d", cfg.RateBurst)
	}

	return cfg, nil
}

// UseDatabaseStorage はPostgreSQLバックエンドを使用するかを返す。
func (c *Config) UseDatabaseStorage() bool {
	return c.StorageDSN != ""
}

// validateBaseURL はベースURLがhttp/httpsの絶対URLであることを検証する。
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host: %q", raw)
	}
	return nil
}

// defaultStorageDir は$XDG_CONFIG_HOME/taskman、未設定時は~/.config/taskmanを返す。
func defaultStorageDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "taskman")
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "taskman")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
