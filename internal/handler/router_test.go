package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

// mockCompleter はテスト用のCallbackCompleter。
type mockCompleter struct {
	route string
	err   error
	got   []url.Values
}

func (m *mockCompleter) CompleteGoogleCallback(query url.Values) (string, error) {
	m.got = append(m.got, query)
	return m.route, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestGoogleCallback_Success(t *testing.T) {
	var logs bytes.Buffer
	completer := &mockCompleter{route: auth.RouteHome}
	cb := NewCallbackHandler(completer, newTestLogger(&logs))
	router := NewRouter(&RouterDeps{Callback: cb, Logger: newTestLogger(&logs)})

	req := httptest.NewRequest(http.MethodGet, "/google-callback?token=jwt&user=%7B%7D", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Successfully logged in") {
		t.Errorf("body = %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if len(completer.got) != 1 || completer.got[0].Get("token") != "jwt" {
		t.Errorf("completer received %v", completer.got)
	}

	select {
	case res := <-cb.Results():
		if res.Route != auth.RouteHome || res.Err != nil {
			t.Errorf("result = %+v", res)
		}
	default:
		t.Fatal("結果がチャネルに送られるべき")
	}

	if strings.Contains(logs.String(), "token=jwt") {
		t.Error("ログにトークンを含めるべきではない")
	}
}

func TestGoogleCallback_MissingToken(t *testing.T) {
	var logs bytes.Buffer
	cbErr := &model.MalformedCallbackError{Field: "token", Reason: "missing"}
	cb := NewCallbackHandler(&mockCompleter{route: auth.RouteSignIn, err: cbErr}, newTestLogger(&logs))
	router := NewRouter(&RouterDeps{Callback: cb, Logger: newTestLogger(&logs)})

	req := httptest.NewRequest(http.MethodGet, "/google-callback", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Google authentication failed") {
		t.Errorf("body = %s", w.Body.String())
	}

	res := <-cb.Results()
	if res.Route != auth.RouteSignIn || !errors.Is(res.Err, cbErr) {
		t.Errorf("result = %+v", res)
	}
}

func TestGoogleCallback_IgnoresLaterCallbacks(t *testing.T) {
	var logs bytes.Buffer
	completer := &mockCompleter{route: auth.RouteHome}
	cb := NewCallbackHandler(completer, newTestLogger(&logs))
	router := NewRouter(&RouterDeps{Callback: cb, Logger: newTestLogger(&logs)})

	for i, token := range []string{"first", "second", "third"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-callback?token="+token, nil))

		want := http.StatusOK
		if i > 0 {
			want = http.StatusConflict
		}
		if w.Code != want {
			t.Errorf("request %d status = %d, want %d", i, w.Code, want)
		}
	}

	// 2回目以降のトークンでセッションを上書きしない
	if len(completer.got) != 1 || completer.got[0].Get("token") != "first" {
		t.Errorf("completer received %v, want only the first callback", completer.got)
	}

	<-cb.Results()
	select {
	case res := <-cb.Results():
		t.Errorf("unexpected extra result %+v", res)
	default:
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordForcedLogout()

	router := NewRouter(&RouterDeps{Metrics: metrics.Handler(reg), Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "taskman_forced_logout_total") {
		t.Error("metrics body should contain taskman_forced_logout_total")
	}
}

func TestRouter_UnregisteredRoutesReturn404(t *testing.T) {
	router := NewRouter(&RouterDeps{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))})

	for _, path := range []string{"/google-callback", "/metrics", "/"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
		}
	}
}

func TestRouter_AppliesSecurityHeadersAndRequestID(t *testing.T) {
	var logs bytes.Buffer
	cb := NewCallbackHandler(&mockCompleter{route: auth.RouteHome}, newTestLogger(&logs))
	router := NewRouter(&RouterDeps{Callback: cb, Logger: newTestLogger(&logs)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-callback?token=t", nil))

	if w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", w.Header().Get("Cache-Control"))
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be set")
	}
}
