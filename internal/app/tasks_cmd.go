package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitoshi/taskman/internal/guard"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

func newTasksCommand(a *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage tasks",
	}
	cmd.AddCommand(
		newTasksListCommand(a),
		newTasksCreateCommand(a),
		newTasksGetCommand(a),
		newTasksUpdateCommand(a),
		newTasksDeleteCommand(a),
	)
	return cmd
}

func newTasksListCommand(a *application) *cobra.Command {
	var (
		page, limit int
		sortBy      string
		desc, all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := task.ParseSortKey(sortBy)
			if err != nil {
				return err
			}

			return a.protected(cmd, func(ctx context.Context, rt *runtime, g *guard.Guard) error {
				result, err := rt.tasks.List(ctx, page, limit)
				if err != nil {
					return err
				}

				// 途中でセッションが失効したら残りのページは取得しない
				for p := page; all && p < result.Pagination.TotalPages && g.Allowed(); p++ {
					next, err := rt.tasks.List(ctx, p+1, limit)
					if err != nil {
						return err
					}
					result.Tasks = append(result.Tasks, next.Tasks...)
					result.Pagination = next.Pagination
				}

				task.SortTasks(result.Tasks, key, desc)
				return a.printer().taskPage(*result)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number (1-based)")
	cmd.Flags().IntVarP(&limit, "limit", "l", task.DefaultPageSize, fmt.Sprintf("tasks per page (max %d)", task.MaxPageSize))
	cmd.Flags().StringVarP(&sortBy, "sort", "s", "", "sort by title, status or createdAt")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort in descending order")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page starting at --page")
	return cmd
}

func newTasksCreateCommand(a *application) *cobra.Command {
	var in model.TaskInput
	var status string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := model.ParseTaskStatus(status)
			if err != nil {
				return err
			}
			in.Status = s

			return a.protected(cmd, func(ctx context.Context, rt *runtime, _ *guard.Guard) error {
				p := newPrompter(a.streams.In, a.streams.Err)
				if in.Title == "" {
					if in.Title, err = p.Line("Title: "); err != nil {
						return fmt.Errorf("no title provided: %w", err)
					}
				}
				if in.Description == "" {
					if in.Description, err = p.Line("Description: "); err != nil {
						return fmt.Errorf("no description provided: %w", err)
					}
				}

				created, err := rt.tasks.Create(ctx, in)
				if err != nil {
					return err
				}
				if created != nil {
					if err := a.printer().task(*created); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(a.streams.Out, "Task created.")
				}
				rt.nav.Navigate(routeTasksList)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&status, "status", string(model.TaskStatusPending), "pending, in-progress or completed")
	return cmd
}

func newTasksGetCommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.protected(cmd, func(ctx context.Context, rt *runtime, _ *guard.Guard) error {
				t, err := rt.tasks.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printer().task(*t)
			})
		},
	}
}

func newTasksUpdateCommand(a *application) *cobra.Command {
	var title, description, status string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long:  "Only the fields given as flags are changed; the others keep their current values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch task.Patch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("status") {
				s, err := model.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &s
			}
			if patch.Empty() {
				return errors.New("nothing to update: pass --title, --description or --status")
			}

			return a.protected(cmd, func(ctx context.Context, rt *runtime, _ *guard.Guard) error {
				updated, err := rt.tasks.Patch(ctx, args[0], patch)
				if err != nil {
					return err
				}
				if updated != nil {
					if err := a.printer().task(*updated); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(a.streams.Out, "Task updated.")
				}
				rt.nav.Navigate(routeTasksList)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status: pending, in-progress or completed")
	return cmd
}

func newTasksDeleteCommand(a *application) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.protected(cmd, func(ctx context.Context, rt *runtime, _ *guard.Guard) error {
				if !yes {
					p := newPrompter(a.streams.In, a.streams.Err)
					ok, err := p.Confirm(fmt.Sprintf("Delete task %s?", args[0]))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(a.streams.Err, "Aborted.")
						return nil
					}
				}

				if err := rt.tasks.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(a.streams.Out, "Task deleted.")
				rt.nav.Navigate(routeTasksList)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking for confirmation")
	return cmd
}
