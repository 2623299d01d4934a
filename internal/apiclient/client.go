// Package apiclient はタスク管理APIへのHTTPクライアントを提供する。
//
// すべてのリクエストはセッションストアのトークンを付与して送信され、
// 401を受けた時点でセッションが破棄される。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskman/internal/metrics"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"

	// DefaultUserAgent はUser-Agent未指定時の値。
	DefaultUserAgent = "taskman-cli/1.0"

	// maxErrorBody はHTTPErrorに保持するレスポンスボディの上限。
	maxErrorBody = 64 << 10
)

// Config はClientの設定。
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // req/sec。0以下の場合は制限しない
	RateBurst int
	UserAgent string

	// Transport は下位のトランスポート。nilの場合はhttp.DefaultTransportを使う。
	Transport http.RoundTripper
}

// Client はタスク管理APIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New はClientを生成する。collectorがnilの場合はメトリクスを記録しない。
func New(cfg Config, session SessionSource, collector metrics.MetricsCollector, logger *slog.Logger) (*Client, error) {
	if session == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			Transport: &authTransport{
				base:      base,
				session:   session,
				limiter:   limiter,
				metrics:   collector,
				logger:    logger,
				userAgent: userAgent,
			},
		},
		logger: logger,
	}, nil
}

// BaseURL はAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient はトークン付与と401処理を組み込んだhttp.Clientを返す。
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do はpathへリクエストを送信する。bodyがnilでなければJSONとして送る。
// 2xxの場合はレスポンスをoutへデコードし、それ以外は*HTTPErrorを返す。
// 401の場合、戻る時点でセッションは既に破棄されている。
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerAccept, contentTypeJSON)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("api returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// Get はGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}
