package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/taskman/internal/model"
)

// outputFormat はコマンド結果の出力形式。
type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch outputFormat(s) {
	case formatTable, formatJSON, formatYAML:
		return outputFormat(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q (allowed: table, json, yaml)", s)
	}
}

// printer はtable以外の形式で値を出力し、tableの場合はrenderを呼ぶ。
type printer struct {
	w      io.Writer
	format outputFormat
}

func (p printer) print(v any, render func(w io.Writer) error) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return render(p.w)
	}
}

func (p printer) profile(u model.Profile) error {
	return p.print(u, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\t%s\n", u.ID)
		fmt.Fprintf(tw, "USERNAME\t%s\n", u.Username)
		fmt.Fprintf(tw, "NAME\t%s\n", u.DisplayName())
		fmt.Fprintf(tw, "EMAIL\t%s\n", u.Email)
		return tw.Flush()
	})
}

func (p printer) task(t model.Task) error {
	return p.print(t, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\t%s\n", t.ID)
		fmt.Fprintf(tw, "TITLE\t%s\n", t.Title)
		fmt.Fprintf(tw, "STATUS\t%s\n", t.Status)
		fmt.Fprintf(tw, "CREATED\t%s\n", formatTime(t.CreatedAt))
		fmt.Fprintf(tw, "UPDATED\t%s\n", formatTime(t.UpdatedAt))
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\n%s\n", t.Description)
		return err
	})
}

func (p printer) taskPage(page model.TaskPage) error {
	return p.print(page, func(w io.Writer) error {
		if len(page.Tasks) == 0 {
			_, err := fmt.Fprintln(w, "No tasks found.")
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tCREATED")
		for _, t := range page.Tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, formatTime(t.CreatedAt))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		pg := page.Pagination
		if pg.TotalPages > 0 {
			_, err := fmt.Fprintf(w, "\nPage %d of %d (%d tasks)\n", pg.Page, pg.TotalPages, pg.Total)
			return err
		}
		return nil
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
