// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Profile はログイン中ユーザーのプロフィールを表す。
// リモートサービスが所有するユーザーレコードのうち、クライアントが保持する部分のみを持つ。
type Profile struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	Username  string `json:"username" yaml:"username"`
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
}

// DisplayName は表示用の氏名を返す。氏名が空の場合はユーザー名、さらに空ならメールアドレスを返す。
func (p Profile) DisplayName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

// Credentials はメールアドレスとパスワードによるログイン情報。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate はリクエストを組み立てられるだけの入力が揃っているかを確認する。
// 形式の検証はサーバーに任せる。
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return errors.New("email is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// Registration はアカウント作成リクエストの内容。
type Registration struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// Validate は必須項目が揃っていて、確認用パスワードが一致するかを確認する。
func (r Registration) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"username", r.Username},
		{"email", r.Email},
		{"first name", r.FirstName},
		{"last name", r.LastName},
		{"password", r.Password},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	if r.Password != r.PasswordConfirm {
		return errors.New("passwords do not match")
	}
	return nil
}
