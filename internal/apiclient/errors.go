package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/taskman/internal/model"
)

// HTTPError はAPIが2xx以外のステータスを返したことを表す。
// Bodyにはレスポンスボディをそのまま保持する。
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is は401の場合にmodel.ErrUnauthorizedと一致させる。
func (e *HTTPError) Is(target error) bool {
	return target == model.ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized はステータスが401かを返す。
func (e *HTTPError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsNotFound はステータスが404かを返す。
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsHTTPError はerrの連鎖からHTTPErrorを取り出す。
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
