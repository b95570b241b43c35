package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/onoki/glance/internal/service"
)

func newChangesCmd(c *cli) *cobra.Command {
	var since int64
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Print change records after a cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				set, err := a.changes.GetChanges(ctx, since)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), set, func(w io.Writer) {
					for _, ch := range set.Changes {
						fprintf(w, "%d %s %s %s %s\n", ch.ID,
							time.UnixMilli(ch.ChangedAt).In(a.loc).Format(time.RFC3339),
							ch.ChangeType, ch.EntityType, ch.EntityID)
					}
					fprintf(w, "cursor %d\n", set.LastID)
				})
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "return records with id greater than this")
	return cmd
}

func newGenerateCmd(c *cli) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Materialize occurrences of recurring templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				run := a.maintenance.Generate
				if reset {
					run = a.maintenance.ResetRecurrence
				}
				created, err := run(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]int{"created": created}, func(w io.Writer) {
					fprintf(w, "created %d\n", created)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the generation horizon before generating")
	return cmd
}

func newArchiveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move today's completions into history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				moved, err := a.maintenance.Archive(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]int{"moved": moved}, func(w io.Writer) {
					fprintf(w, "moved %d\n", moved)
				})
			})
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show completed tasks per day over the history window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				h, err := a.history.History(ctx, a.historyWindowStart())
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), h, func(w io.Writer) { printHistory(w, h) })
			})
		},
	}
}

func printHistory(w io.Writer, h service.History) {
	if len(h.Groups) == 0 {
		fprintf(w, "no completed tasks\n")
		return
	}
	for _, g := range h.Groups {
		fprintf(w, "%s (%d)\n", g.Date, len(g.Tasks))
		for _, t := range g.Tasks {
			fprintf(w, "  %s  %s\n", t.ID, t.PlainTitle())
		}
	}
}

func newReindexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the tasks table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				n, err := a.maintenance.ReindexSearch(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]int{"indexed": n}, func(w io.Writer) {
					fprintf(w, "indexed %d tasks\n", n)
				})
			})
		},
	}
}

func newDoctorCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check database integrity and report warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *application) error {
				if _, err := a.maintenance.CheckIntegrity(ctx); err != nil {
					return err
				}
				st, err := a.maintenance.Status(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), st, func(w io.Writer) { printStatus(w, st) })
			})
		},
	}
}

func printStatus(w io.Writer, st service.Status) {
	fprintf(w, "schema version  %d\n", st.SchemaVersion)
	fprintf(w, "tasks           %d\n", st.TaskCount)
	switch {
	case !st.IndexPresent:
		fprintf(w, "search index    missing\n")
	case st.IndexStale > 0:
		fprintf(w, "search index    %d stale entries, run reindex\n", st.IndexStale)
	default:
		fprintf(w, "search index    ok\n")
	}
	fprintf(w, "integrity       %s\n", okOr(st.State.IntegrityError == "", st.State.IntegrityError))
	if st.State.LastReindexAt > 0 {
		fprintf(w, "last reindex    %s\n", time.UnixMilli(st.State.LastReindexAt).Format(time.RFC3339))
	}
	for _, warn := range st.Warnings {
		fprintf(w, "warning [%s] %s\n", warn.Code, warn.Message)
	}
}

func okOr(ok bool, otherwise string) string {
	if ok {
		return "ok"
	}
	return otherwise
}
