package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onoki/glance/internal/app"
	"github.com/onoki/glance/internal/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfgFile string
	asJSON  bool

	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "glance",
		Short:         "Glance is a local-first task board.",
		Long:          "Glance keeps tasks, recurring templates and completion history in a local SQLite file.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfgFile != "" {
				if err := os.Setenv("GLANCE_CONFIG", c.cfgFile); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = app.NewLogger(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (default ./glance.yaml)")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		newServeCmd(c),
		newAddCmd(c),
		newCompleteCmd(c, true),
		newCompleteCmd(c, false),
		newDeleteCmd(c),
		newListCmd(c),
		newSearchCmd(c),
		newChangesCmd(c),
		newGenerateCmd(c),
		newArchiveCmd(c),
		newHistoryCmd(c),
		newReindexCmd(c),
		newDoctorCmd(c),
	)
	return root
}

// withApp opens the store for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *application) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.log.Warn("close store", slog.Any("error", err))
		}
	}()
	return fn(ctx, a)
}

// print writes v as indented JSON when --json is set and otherwise calls text.
func (c *cli) print(w io.Writer, v any, text func(io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
