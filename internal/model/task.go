// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task はリモートサービスが管理するタスクを表す。
type Task struct {
	ID          string     `json:"_id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Status      TaskStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未着手。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress は作業中。
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted は完了。
	TaskStatusCompleted TaskStatus = "completed"
)

// ParseTaskStatus は文字列をTaskStatusに変換する。未知の値はエラーを返す。
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("invalid task status %q (allowed: pending, in-progress, completed)", s)
	}
}

// TaskInput はタスクの作成・更新時に送信する内容。
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
}

// Validate はリクエストを組み立てられるだけの入力が揃っているかを確認する。
// 長さなどの制約はサーバーが検証する。
func (in TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("description is required")
	}
	if _, err := ParseTaskStatus(string(in.Status)); err != nil {
		return err
	}
	return nil
}

// Pagination はタスク一覧のページング情報を表す。
type Pagination struct {
	Total      int `json:"total" yaml:"total"`
	Page       int `json:"page" yaml:"page"`
	Limit      int `json:"limit" yaml:"limit"`
	TotalPages int `json:"totalPages" yaml:"totalPages"`
}

// TaskPage はタスク一覧の1ページ分を表す。
type TaskPage struct {
	Tasks      []Task     `json:"tasks" yaml:"tasks"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
}

// HasNext は次のページが存在するかを返す。
func (p TaskPage) HasNext() bool {
	return p.Pagination.Page < p.Pagination.TotalPages
}
