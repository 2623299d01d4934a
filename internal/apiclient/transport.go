package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskman/internal/metrics"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	headerUserAgent     = "User-Agent"
)

// SessionSource はトランスポートが参照するセッションの操作。
// *session.Store がこれを満たす。
type SessionSource interface {
	Token() string
	Logout() error
}

// authTransport はリクエストごとにストアからトークンを読み出してヘッダに付与し、
// 401レスポンスを受けたらセッションを破棄するhttp.RoundTripper。
// レスポンスとエラーはそのまま呼び出し元へ返す。
type authTransport struct {
	base      http.RoundTripper
	session   SessionSource
	limiter   *rate.Limiter
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	userAgent string
}

// RoundTrip はhttp.RoundTripperインターフェースを実装する。
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		waitStart := time.Now()
		if err := t.limiter.Wait(req.Context()); err != nil {
			t.metrics.RecordRequestFailure("rate_limit")
			return nil, err
		}
		t.metrics.RecordRateLimitWait(time.Since(waitStart))
	}

	// RoundTripperは元のリクエストを変更してはならない
	out := req.Clone(req.Context())
	if out.Header.Get(headerRequestID) == "" {
		out.Header.Set(headerRequestID, uuid.New().String())
	}
	if t.userAgent != "" {
		out.Header.Set(headerUserAgent, t.userAgent)
	}
	// トークンは送信直前に読む。ログイン直後やログアウト直後のリクエストにも最新の値が反映される。
	if token := t.session.Token(); token != "" {
		out.Header.Set(headerAuthorization, "Bearer "+token)
	} else {
		out.Header.Del(headerAuthorization)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	t.metrics.RecordRequestLatency(time.Since(start))
	if err != nil {
		t.metrics.RecordRequestFailure(failureReason(err))
		return nil, err
	}

	t.metrics.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized {
		t.metrics.RecordForcedLogout()
		t.logger.Warn("authorization rejected, logging out",
			slog.String("method", out.Method),
			slog.String("path", out.URL.Path),
			slog.String("request_id", out.Header.Get(headerRequestID)),
		)
		if logoutErr := t.session.Logout(); logoutErr != nil {
			// メモリ上のセッションは破棄済み。永続化の失敗はストア側で記録される
			t.logger.Error("failed to persist logout",
				slog.String("error", logoutErr.Error()),
			)
		}
	}

	return resp, nil
}

// failureReason はネットワークエラーをメトリクスのラベルに分類する。
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "network"
	}
}
