// File: cmd/simulate.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/observability"
	"github.com/xkilldash9x/shopkeep/internal/service"
)

// newSimulateCmd creates the `simulate` command, which runs the engine on simulated
// time as fast as the host allows.
func newSimulateCmd() *cobra.Command {
	var (
		hours            float64
		customersPerHour float64
		seed             int64
		start            string
		asJSON           bool
	)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulates store trading on a virtual clock and prints a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			if cmd.Flags().Changed("customers-per-hour") {
				cfg.Simulation.CustomersPerHour = customersPerHour
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed = seed
			}
			// Virtual time never exposes metrics or archives.
			cfg.Metrics.Enabled = false

			startAt := time.Now().UTC().Truncate(time.Hour)
			if start != "" {
				startAt, err = time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}

			logger := observability.GetLogger()
			clk := clock.NewFake(startAt)
			components, err := service.Build(cmd.Context(), cfg, clk, logger, service.Options{Traffic: true})
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			if err := components.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start automation: %w", err)
			}

			span := time.Duration(hours * float64(time.Hour))
			ran, err := components.Scheduler.Advance(span)
			if err != nil {
				return err
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			logger.Info("Simulation complete", zap.Duration("span", span), zap.Int("jobs", ran))

			return newReport(components, span).write(cmd.OutOrStdout(), asJSON)
		},
	}

	simulateCmd.Flags().Float64Var(&hours, "hours", 8, "simulated hours to run")
	simulateCmd.Flags().Float64Var(&customersPerHour, "customers-per-hour", 40, "customer arrival rate")
	simulateCmd.Flags().Int64Var(&seed, "seed", 1, "random seed for traffic and checkout")
	simulateCmd.Flags().StringVar(&start, "start", "", "simulated start time, RFC3339 (default: the current hour)")
	simulateCmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return simulateCmd
}
