// Package handler はOAuthコールバックを受けるループバックHTTPサーバーのハンドラーを提供する。
package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/hitoshi/taskman/internal/auth"
)

// CallbackCompleter はコールバックのクエリを処理し、遷移先を返す。
// *auth.Service がこれを満たす。
type CallbackCompleter interface {
	CompleteGoogleCallback(query url.Values) (string, error)
}

// CallbackResult はコールバック処理の結果。
type CallbackResult struct {
	Route string
	Err   error
}

// CallbackHandler はGoogleログイン後のリダイレクトを受けるハンドラー。
type CallbackHandler struct {
	completer CallbackCompleter
	results   chan CallbackResult
	logger    *slog.Logger

	mu      sync.Mutex
	handled bool
}

// NewCallbackHandler はCallbackHandlerを生成する。
func NewCallbackHandler(completer CallbackCompleter, logger *slog.Logger) *CallbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackHandler{
		completer: completer,
		results:   make(chan CallbackResult, 1),
		logger:    logger,
	}
}

// Results は処理結果を受け取るチャネルを返す。
// 最初のコールバックの結果だけが送られる。
func (h *CallbackHandler) Results() <-chan CallbackResult {
	return h.results
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>taskman</title>
<style>body{font-family:sans-serif;display:flex;min-height:100vh;align-items:center;justify-content:center;margin:0}main{text-align:center}</style>
</head>
<body>
<main>
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
</main>
</body>
</html>
`))

type callbackPageData struct {
	Title   string
	Message string
}

// GoogleCallback はコールバックのクエリをセッションへ反映し、結果ページを返す。
// 処理するのは最初のコールバックだけで、以降はセッションを変更せずに409を返す。
// GET /google-callback
func (h *CallbackHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handled {
		h.logger.Warn("ignoring repeated google callback")
		h.render(w, http.StatusConflict, callbackPageData{
			Title:   "Sign-in already handled",
			Message: "This sign-in attempt has already been processed. Return to the terminal.",
		})
		return
	}
	h.handled = true

	route, err := h.completer.CompleteGoogleCallback(r.URL.Query())

	data := callbackPageData{
		Title:   "Successfully logged in with Google",
		Message: "You can close this window and return to the terminal.",
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Warn("google callback failed", slog.String("error", err.Error()))
	}
	// トークンの永続化に失敗した場合もログイン自体は完了している
	if route != auth.RouteHome {
		data = callbackPageData{
			Title:   "Google authentication failed",
			Message: "Return to the terminal and try signing in again.",
		}
		status = http.StatusBadRequest
	}

	h.results <- CallbackResult{Route: route, Err: err}
	h.render(w, status, data)
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, data callbackPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, data); err != nil {
		h.logger.Error("failed to render callback page", slog.String("error", err.Error()))
	}
}
