// Package auth はログイン、アカウント作成、Google OAuthコールバックの処理を提供する。
// 成功した認証結果はすべてsession.Storeへコミットされる。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/taskman/internal/apiclient"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

const (
	loginPath    = "/security/auth/login"
	registerPath = "/security/auth/register"
	googlePath   = "/security/auth/google"
)

// ログイン結果のメトリクスラベル
const (
	loginResultSuccess   = "success"
	loginResultRejected  = "rejected"
	loginResultMalformed = "malformed"
	loginResultError     = "error"
)

// APIClient は認証サービスが使用するHTTPクライアントの操作。
// *apiclient.Client がこれを満たす。
type APIClient interface {
	Post(ctx context.Context, path string, body, out any) error
	BaseURL() string
}

// SessionWriter は認証結果を書き込むセッションの操作。
// *session.Store がこれを満たす。
type SessionWriter interface {
	Commit(token string, user *model.Profile) error
	SetToken(token string) error
	SetUser(user model.Profile) error
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	api     APIClient
	session SessionWriter
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(api APIClient, session SessionWriter, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:     api,
		session: session,
		metrics: collector,
		logger:  logger,
	}
}

// loginResponse はログインAPIのレスポンス。
// トークンはtokenまたはaccessTokenのどちらかに入る。
type loginResponse struct {
	Token       string         `json:"token"`
	AccessToken string         `json:"accessToken"`
	User        *model.Profile `json:"user"`
}

// Login は認証情報でログインし、トークンとプロフィールをセッションにコミットする。
// 失敗時は*model.AuthenticationErrorを返し、セッションは変更しない。
// ただし401の場合はHTTPクライアントによって既にログアウトされている。
func (s *Service) Login(ctx context.Context, creds model.Credentials) (*model.Profile, error) {
	var resp loginResponse
	if err := s.api.Post(ctx, loginPath, creds, &resp); err != nil {
		if _, ok := apiclient.AsHTTPError(err); ok {
			s.metrics.RecordLogin(loginResultRejected)
			s.logger.Info("login rejected", slog.String("error", err.Error()))
			return nil, &model.AuthenticationError{Reason: "login rejected", Err: err}
		}
		// ネットワークエラーの他、2xxだがJSONとして解釈できない場合もここに来る
		s.metrics.RecordLogin(loginResultError)
		return nil, &model.AuthenticationError{Reason: "login request failed", Err: err}
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		s.metrics.RecordLogin(loginResultMalformed)
		s.logger.Warn("login response has no token")
		return nil, &model.AuthenticationError{Reason: "malformed login response: missing token"}
	}

	if err := s.session.Commit(token, resp.User); err != nil {
		// メモリ上のセッションはコミット済み
		s.metrics.RecordLogin(loginResultSuccess)
		return resp.User, err
	}

	s.metrics.RecordLogin(loginResultSuccess)
	s.logger.Info("logged in", slog.Bool("has_user", resp.User != nil))
	return resp.User, nil
}

// Register はアカウントを作成する。セッションは成否にかかわらず変更しない。
// 非2xxの場合はレスポンスボディをそのまま保持した*model.RegistrationErrorを返す。
func (s *Service) Register(ctx context.Context, reg model.Registration) error {
	if err := s.api.Post(ctx, registerPath, reg, nil); err != nil {
		if httpErr, ok := apiclient.AsHTTPError(err); ok {
			s.logger.Info("registration rejected", slog.Int("http_status", httpErr.StatusCode))
			return &model.RegistrationError{
				StatusCode: httpErr.StatusCode,
				Payload:    httpErr.Body,
				Err:        err,
			}
		}
		return &model.RegistrationError{Err: err}
	}

	s.logger.Info("account registered")
	return nil
}

// GoogleLoginURL はGoogleログインを開始するURLを返す。
// APIからの呼び出しではなく、ブラウザで開くリダイレクト先。
func (s *Service) GoogleLoginURL() string {
	return s.api.BaseURL() + googlePath
}
