package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/onoki/glance/internal/bot"
	"github.com/onoki/glance/internal/service"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run startup maintenance, the daily scheduler and the optional Telegram digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return c.withApp(cmd, c.serve)
		},
	}
}

func (c *cli) serve(ctx context.Context, a *application) error {
	if err := a.maintenance.RunStartup(ctx); err != nil {
		return err
	}

	scheduler := service.NewSchedulerService(a.loc, c.log)
	if _, err := scheduler.ScheduleDaily("maintenance", c.cfg.Maintenance.DailyAt, a.maintenance.RunDaily); err != nil {
		return err
	}
	if every := c.cfg.Maintenance.IndexCheckEvery; every > 0 {
		if _, err := scheduler.ScheduleInterval("index-check", every, a.maintenance.EnsureSearchIndex); err != nil {
			return err
		}
	}

	var notifier *bot.Notifier
	if c.cfg.Digest.Enabled {
		n, err := bot.New(c.cfg.Telegram.Token, c.cfg.Telegram.ChatIDs, a.digest, a.search, c.log)
		if err != nil {
			return err
		}
		notifier = n
		if _, err := scheduler.ScheduleDaily("digest", c.cfg.Digest.At, notifier.SendDigest); err != nil {
			return err
		}
	}

	scheduler.Start()
	defer scheduler.Stop()
	c.log.Info("glance started", slog.String("version", version), slog.Int("jobs", scheduler.Entries()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if notifier != nil {
		g.Go(func() error {
			if err := notifier.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	c.log.Info("shutdown complete")
	return err
}
