package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onoki/glance/internal/document"
	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/service"
)

func newAddCmd(c *cli) *cobra.Command {
	var (
		page     string
		content  string
		date     string
		weekly   []int
		monthly  []int
		position float64
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Long: `Add a task to a page.

Examples:
  glance add "Buy milk"
  glance add --page new "Someday: learn Rust"
  glance add --date 2024-05-20 "Dentist"
  glance add --weekly 1,3 "Standup notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return fmt.Errorf("title cannot be empty")
			}
			if len(weekly) > 0 && len(monthly) > 0 {
				return fmt.Errorf("--weekly and --monthly are mutually exclusive")
			}

			in := model.NewTask{
				Page:     pageName(page),
				Title:    document.FallbackTitle(title),
				Position: position,
			}
			if content != "" {
				in.Content = document.FallbackTitle(content)
			}
			if date != "" {
				in.ScheduledDate = &date
			}
			switch {
			case len(weekly) > 0:
				in.Recurrence, _ = json.Marshal(map[string]any{"type": model.RecurrenceWeekly, "weekdays": weekly})
			case len(monthly) > 0:
				in.Recurrence, _ = json.Marshal(map[string]any{"type": model.RecurrenceMonthly, "monthDays": monthly})
			}

			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				if err := validateNewTask(in); err != nil {
					return err
				}
				res, err := a.tasks.Create(ctx, in)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), res, func(w io.Writer) {
					fprintf(w, "%s\n", res.ID)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&page, "page", "p", "main", "page: main, new or a custom page name")
	cmd.Flags().StringVar(&content, "content", "", "task body text")
	cmd.Flags().StringVar(&date, "date", "", "scheduled date YYYY-MM-DD")
	cmd.Flags().IntSliceVar(&weekly, "weekly", nil, "make a weekly template on these weekdays (1=Mon..7=Sun)")
	cmd.Flags().IntSliceVar(&monthly, "monthly", nil, "make a monthly template on these days of month")
	cmd.Flags().Float64Var(&position, "position", 0, "sort position within the page")
	return cmd
}

func validateNewTask(in model.NewTask) error {
	if err := service.ValidateTaskInput(in.Title, in.Content); err != nil {
		return err
	}
	if err := service.ValidateScheduledDate(in.ScheduledDate); err != nil {
		return err
	}
	if len(in.Recurrence) > 0 {
		if _, err := model.ParseRecurrence(in.Recurrence); err != nil {
			return model.NewValidationError("recurrence", err.Error())
		}
	}
	return nil
}

func newCompleteCmd(c *cli, completed bool) *cobra.Command {
	use, short := "complete <id>", "Mark a task completed"
	if !completed {
		use, short = "reopen <id>", "Mark a completed task open again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				res, err := a.tasks.SetCompletion(ctx, args[0], completed)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), res, func(w io.Writer) {
					if res.CompletedAt != nil {
						fprintf(w, "completed %s\n", args[0])
					} else {
						fprintf(w, "reopened %s\n", args[0])
					}
				})
			})
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				deleted, err := a.tasks.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]bool{"deleted": deleted}, func(w io.Writer) {
					if deleted {
						fprintf(w, "deleted %s\n", args[0])
					} else {
						fprintf(w, "no task %s\n", args[0])
					}
				})
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var page string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks on a page",
		Long: `List tasks.

Pages:
  main     open tasks plus today's completions (default)
  new      the inbox
  history  every completed task, newest first
  <name>   any other page, in position order`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				var (
					views []model.TaskView
					err   error
				)
				switch page {
				case "main":
					views, err = a.tasks.ListDashboardMain(ctx, a.startOfToday())
				case "history":
					views, err = a.tasks.ListHistory(ctx)
				default:
					views, err = a.tasks.ListByPage(ctx, pageName(page))
				}
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), views, func(w io.Writer) { printTasks(w, views) })
			})
		},
	}
	cmd.Flags().StringVarP(&page, "page", "p", "main", "page to list")
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search task titles and bodies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				views, err := a.search.Query(ctx, q)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), views, func(w io.Writer) { printTasks(w, views) })
			})
		},
	}
}

func pageName(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "main":
		return model.PageDashboardMain
	case "new", "inbox":
		return model.PageDashboardNew
	default:
		return p
	}
}

func printTasks(w io.Writer, views []model.TaskView) {
	if len(views) == 0 {
		fprintf(w, "no tasks\n")
		return
	}
	for _, v := range views {
		mark := "[ ]"
		if v.CompletedAt != nil {
			mark = "[x]"
		}
		extra := ""
		if v.ScheduledDate != nil {
			extra = " @" + *v.ScheduledDate
		}
		if len(v.Recurrence) > 0 {
			extra += " (recurring)"
		}
		fprintf(w, "%s %s  %s%s\n", mark, v.ID, v.PlainTitle(), extra)
	}
}
