// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/observability"
	"github.com/xkilldash9x/shopkeep/internal/service"
)

// newRunCmd creates the `run` command, which drives the engine on the wall clock.
func newRunCmd() *cobra.Command {
	var (
		duration  time.Duration
		noTraffic bool
		metrics   bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the automation engine in real time until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Enabled = metrics
			}
			logger := observability.GetLogger()

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			components, err := service.Build(ctx, cfg, clock.Real{}, logger, service.Options{Traffic: !noTraffic, Archive: true})
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			started := time.Now()
			if err := components.Start(ctx); err != nil {
				return fmt.Errorf("failed to start automation: %w", err)
			}
			logger.Info("Automation engine running",
				zap.Any("active", components.Coordinator.Status().Active),
				zap.Duration("duration", duration),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return components.Scheduler.Run(gctx, cfg.Scheduler.Resolution)
			})
			if components.Metrics != nil {
				g.Go(func() error {
					return components.Metrics.Serve(gctx, cfg.Metrics.Addr, logger)
				})
			}
			if components.Archiver != nil {
				g.Go(func() error {
					return components.Archiver.Run(gctx)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return newReport(components, time.Since(started)).write(cmd.OutOrStdout(), false)
		},
	}

	runCmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&noTraffic, "no-traffic", false, "do not generate synthetic store traffic")
	runCmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics on metrics.addr")
	return runCmd
}
