package task

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// SortKey は一覧の並び替えに使う項目。
type SortKey string

const (
	SortNone      SortKey = ""
	SortTitle     SortKey = "title"
	SortStatus    SortKey = "status"
	SortCreatedAt SortKey = "createdAt"
)

// ParseSortKey は文字列をSortKeyに変換する。空文字列はSortNoneになる。
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case SortNone, SortTitle, SortStatus, SortCreatedAt:
		return SortKey(s), nil
	default:
		return "", fmt.Errorf("invalid sort key %q (allowed: title, status, createdAt)", s)
	}
}

// SortTasks は取得済みの1ページ分のタスクをその場で並び替える。
// 同じ値のタスクは元の順序を保つ。SortNoneの場合は何もしない。
func SortTasks(tasks []model.Task, key SortKey, desc bool) {
	var cmp func(a, b model.Task) int
	switch key {
	case SortTitle:
		cmp = func(a, b model.Task) int {
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		}
	case SortStatus:
		cmp = func(a, b model.Task) int {
			return strings.Compare(string(a.Status), string(b.Status))
		}
	case SortCreatedAt:
		cmp = func(a, b model.Task) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	default:
		return
	}

	if desc {
		asc := cmp
		cmp = func(a, b model.Task) int { return asc(b, a) }
	}
	slices.SortStableFunc(tasks, cmp)
}
