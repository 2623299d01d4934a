// Package task はタスクAPIの操作を提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/security"
)

const (
	tasksPath = "/task/tasks"

	// DefaultPageSize は一覧取得時の1ページあたりの件数。
	DefaultPageSize = 10
	// MaxPageSize は1ページあたりの最大件数。
	MaxPageSize = 100
)

// APIClient はタスクサービスが使用するHTTPクライアントの操作。
// *apiclient.Client がこれを満たす。
type APIClient interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// Service はタスクの取得・作成・更新・削除を提供する。
// 取得したタスクのタイトルと説明はサニタイズ済みで返す。
type Service struct {
	api       APIClient
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
}

// NewService はServiceを生成する。sanitizerがnilの場合は既定のサニタイザを使う。
func NewService(api APIClient, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Service {
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:       api,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// taskEnvelope は単一タスクのレスポンス。
type taskEnvelope struct {
	Task *model.Task `json:"task"`
}

// List は指定ページのタスク一覧を取得する。
// pageは1始まり。limitが0の場合はDefaultPageSizeを使う。
func (s *Service) List(ctx context.Context, page, limit int) (*model.TaskPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be at least 1, got %d", page)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", MaxPageSize, limit)
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var result model.TaskPage
	if err := s.api.Get(ctx, tasksPath+"?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	for i := range result.Tasks {
		s.sanitize(&result.Tasks[i])
	}

	s.logger.Debug("tasks listed",
		slog.Int("page", result.Pagination.Page),
		slog.Int("count", len(result.Tasks)),
		slog.Int("total", result.Pagination.Total),
	)
	return &result, nil
}

// Get は指定IDのタスクを取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Task, error) {
	t, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sanitize(t)
	return t, nil
}

// fetch はサニタイズ前のタスクを取得する。サーバーへ送り返す値はこちらを元にする。
func (s *Service) fetch(ctx context.Context, id string) (*model.Task, error) {
	path, err := taskPath(id)
	if err != nil {
		return nil, err
	}

	var env taskEnvelope
	if err := s.api.Get(ctx, path, &env); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if env.Task == nil {
		return nil, fmt.Errorf("failed to get task: response has no task")
	}
	return env.Task, nil
}

// Patch はタスクの部分更新。nilのフィールドは現在の値を維持する。
type Patch struct {
	Title       *string
	Description *string
	Status      *model.TaskStatus
}

// Empty は変更するフィールドがないかを返す。
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// Patch は現在のタスクを取得し、patchで指定したフィールドだけを変更して更新する。
// 変更しないフィールドはサーバーが返した値をそのまま送る。
func (s *Service) Patch(ctx context.Context, id string, patch Patch) (*model.Task, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("nothing to update")
	}

	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	in := model.TaskInput{
		Title:       current.Title,
		Description: current.Description,
		Status:      current.Status,
	}
	if patch.Title != nil {
		in.Title = *patch.Title
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.Status != nil {
		in.Status = *patch.Status
	}
	return s.Update(ctx, id, in)
}

// Create はタスクを作成する。
// レスポンスにタスクが含まれない場合はnilを返す。
func (s *Service) Create(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	var env taskEnvelope
	if err := s.api.Post(ctx, tasksPath, in, &env); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	if env.Task != nil {
		s.sanitize(env.Task)
	}

	s.logger.Info("task created", slog.String("status", string(in.Status)))
	return env.Task, nil
}

// Update は指定IDのタスクを更新する。
// レスポンスにタスクが含まれない場合はnilを返す。
func (s *Service) Update(ctx context.Context, id string, in model.TaskInput) (*model.Task, error) {
	path, err := taskPath(id)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	var env taskEnvelope
	if err := s.api.Put(ctx, path, in, &env); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if env.Task != nil {
		s.sanitize(env.Task)
	}

	s.logger.Info("task updated", slog.String("task_id", id))
	return env.Task, nil
}

// Delete は指定IDのタスクを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	path, err := taskPath(id)
	if err != nil {
		return err
	}
	if err := s.api.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.logger.Info("task deleted", slog.String("task_id", id))
	return nil
}

func (s *Service) sanitize(t *model.Task) {
	t.Title = s.sanitizer.Sanitize(t.Title)
	t.Description = s.sanitizer.Sanitize(t.Description)
}

func taskPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("task id is required")
	}
	return tasksPath + "/" + url.PathEscape(id), nil
}
