package auth

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// コールバック処理後の遷移先
const (
	RouteHome   = "/"
	RouteSignIn = "/signIn"
)

// CompleteGoogleCallback はGoogleログイン後のコールバックのクエリを処理し、遷移先を返す。
//
// tokenがあればセッションに設定し、userがJSONとして解釈できればプロフィールも設定してRouteHomeを返す。
// userが解釈できない場合はログに記録してプロフィールなしでログインを完了する。
// tokenがなければセッションを変更せず、RouteSignInと*model.MalformedCallbackErrorを返す。
func (s *Service) CompleteGoogleCallback(query url.Values) (string, error) {
	token := strings.TrimSpace(query.Get("token"))
	if token == "" {
		s.metrics.RecordLogin(loginResultMalformed)
		s.logger.Warn("google callback without token")
		return RouteSignIn, &model.MalformedCallbackError{Field: "token", Reason: "missing"}
	}

	if err := s.session.SetToken(token); err != nil {
		// メモリ上はログイン済みのため遷移は継続する
		s.metrics.RecordLogin(loginResultSuccess)
		return RouteHome, err
	}

	if raw := query.Get("user"); raw != "" && raw != "null" {
		user, err := parseCallbackUser(raw)
		if err != nil {
			s.logger.Warn("ignoring user in google callback", slog.String("error", err.Error()))
		} else if err := s.session.SetUser(*user); err != nil {
			s.metrics.RecordLogin(loginResultSuccess)
			return RouteHome, err
		}
	}

	s.metrics.RecordLogin(loginResultSuccess)
	s.logger.Info("logged in with google")
	return RouteHome, nil
}

// parseCallbackUser はコールバックのuserパラメータをプロフィールとして解釈する。
func parseCallbackUser(raw string) (*model.Profile, error) {
	var user model.Profile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, &model.MalformedCallbackError{Field: "user", Reason: "invalid JSON", Err: err}
	}
	return &user, nil
}
