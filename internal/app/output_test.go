package app

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"table", "json", "yaml"} {
		if _, err := parseOutputFormat(s); err != nil {
			t.Errorf("parseOutputFormat(%q) error = %v", s, err)
		}
	}
	if _, err := parseOutputFormat("csv"); err == nil {
		t.Error("parseOutputFormat(csv) should return error")
	}
}

func TestPrinter_TaskPageTable(t *testing.T) {
	var buf bytes.Buffer
	p := printer{w: &buf, format: formatTable}

	page := model.TaskPage{
		Tasks: []model.Task{
			{ID: "t1", Title: "Write docs", Status: model.TaskStatusPending},
			{ID: "t2", Title: "Fix bug", Status: model.TaskStatusCompleted, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		Pagination: model.Pagination{Total: 12, Page: 2, Limit: 2, TotalPages: 6},
	}
	if err := p.taskPage(page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "TITLE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Write docs") || !strings.HasSuffix(lines[1], "-") {
		t.Errorf("zero CreatedAt should print -, got %q", lines[1])
	}
	if lines[len(lines)-1] != "Page 2 of 6 (12 tasks)" {
		t.Errorf("footer = %q", lines[len(lines)-1])
	}
}

func TestPrinter_TaskDescriptionAfterFields(t *testing.T) {
	var buf bytes.Buffer
	p := printer{w: &buf, format: formatTable}

	if err := p.task(model.Task{ID: "t1", Title: "Write docs", Description: "README first", Status: model.TaskStatusPending}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\nREADME first\n") {
		t.Errorf("output = %q, want description at the end", buf.String())
	}
}

func TestPrinter_JSONSkipsRender(t *testing.T) {
	var buf bytes.Buffer
	p := printer{w: &buf, format: formatJSON}

	err := p.print(map[string]int{"n": 1}, func(io.Writer) error {
		return errors.New("render should not be called")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "{\n  \"n\": 1\n}\n" {
		t.Errorf("output = %q", buf.String())
	}
}
