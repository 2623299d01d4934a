// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 定義済みエラーコード
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeRegistrationFailed   = "REGISTRATION_FAILED"
	ErrCodeMalformedCallback    = "MALFORMED_CALLBACK"
)

// ErrUnauthorized はリモートサービスが401を返したことを表す。
// HTTPクライアントはこのエラーを検知するとセッションを破棄する。
var ErrUnauthorized = errors.New("authorization expired")

// AuthenticationError はログインの失敗を表す。
// リモートが非2xxを返した場合、またはレスポンスにトークンが含まれない場合に返される。
type AuthenticationError struct {
	Reason string
	Err    error // 元のエラー（HTTPエラー等）。不正レスポンスの場合はnil
}

// Error はerrorインターフェースを実装する。
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", ErrCodeAuthenticationFailed, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] %s", ErrCodeAuthenticationFailed, e.Reason)
}

// Unwrap は元のエラーを返す。
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RegistrationError はアカウント作成の失敗を表す。
// Payloadにはリモートが返したエラーボディがそのまま格納される。
type RegistrationError struct {
	StatusCode int
	Payload    []byte
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *RegistrationError) Error() string {
	msgs := e.Messages()
	if len(msgs) == 0 {
		if e.StatusCode == 0 && e.Err != nil {
			return fmt.Sprintf("[%s] %v", ErrCodeRegistrationFailed, e.Err)
		}
		return fmt.Sprintf("[%s] status %d", ErrCodeRegistrationFailed, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", ErrCodeRegistrationFailed, strings.Join(msgs, "; "))
}

// Unwrap は元のエラーを返す。
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Messages はPayloadからバリデーションメッセージを抽出する。
// {"message": "..."}、{"message": ["..."]}、{"errors": [...]} の形式に対応し、
// いずれにも当てはまらない場合はPayload全体を1件のメッセージとして返す。
func (e *RegistrationError) Messages() []string {
	body := strings.TrimSpace(string(e.Payload))
	if body == "" {
		return nil
	}

	var payload struct {
		Message json.RawMessage   `json:"message"`
		Errors  []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return []string{body}
	}

	var msgs []string
	msgs = append(msgs, rawMessages(payload.Message)...)
	for _, raw := range payload.Errors {
		msgs = append(msgs, rawMessages(raw)...)
	}
	if len(msgs) == 0 {
		return []string{body}
	}
	return msgs
}

// rawMessages は文字列・文字列配列・{"msg"|"message": ...}オブジェクトをメッセージに変換する。
func rawMessages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var obj struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Msg != "" {
			return []string{obj.Msg}
		}
		if obj.Message != "" {
			return []string{obj.Message}
		}
	}
	return nil
}

// MalformedCallbackError はOAuthコールバックのパラメータが不正であることを表す。
type MalformedCallbackError struct {
	Field  string // "token" または "user"
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *MalformedCallbackError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", ErrCodeMalformedCallback, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は元のエラーを返す。
func (e *MalformedCallbackError) Unwrap() error {
	return e.Err
}
