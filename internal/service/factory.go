// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/coordinator"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
	"github.com/xkilldash9x/shopkeep/internal/metrics"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/simulation"
	"github.com/xkilldash9x/shopkeep/internal/store"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

// Options selects the optional parts of the build.
type Options struct {
	// Traffic attaches the synthetic store traffic generator.
	Traffic bool
	// Archive connects to cfg.Database.URL and archives terminal records.
	Archive bool
}

// Build wires the engine against the demo store. Nothing is started.
func Build(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger, opts Options) (*Components, error) {
	if cfg == nil || clk == nil || logger == nil {
		return nil, fmt.Errorf("cannot build components with nil dependencies")
	}

	sched, err := scheduler.New(clk, logger)
	if err != nil {
		return nil, err
	}
	eventBus := bus.New(logger, clk)
	state := world.NewDemoState(clk, cfg.Simulation.Seed)
	if window := time.Duration(cfg.Inventory.ForecastWindowDays) * 24 * time.Hour; window > world.DefaultRetention {
		state.SetRetention(window)
	}

	c := &Components{Clock: clk, Scheduler: sched, Bus: eventBus, State: state, logger: logger.Named("components")}

	c.Cashier, err = cashier.New(cfg.Cashier, sched, eventBus, state, rand.New(rand.NewSource(cfg.Simulation.Seed)), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction pipeline: %w", err)
	}
	c.Inventory, err = inventory.New(cfg.Inventory, sched, eventBus, state, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create replenishment engine: %w", err)
	}
	c.Advisor, err = advisor.New(cfg.Advisor, sched, eventBus, advisor.NewWorldAnalytics(state, c.Inventory, clk), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision advisor: %w", err)
	}

	var recorder coordinator.MetricsRecorder = metrics.NoOp{}
	if cfg.Metrics.Enabled {
		c.Metrics, err = metrics.NewProvider()
		if err != nil {
			return nil, err
		}
		automation, err := metrics.NewAutomation(c.Metrics.MeterProvider(), cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		eventBus.Subscribe("metrics", automation.HandleEvent, bus.OutboundTopics()...)
		recorder = automation
	}

	modules := []schemas.Module{
		c.Cashier,
		c.Inventory,
		coordinator.NewPeerModule(schemas.ModuleMaintenance, logger),
		coordinator.NewPeerModule(schemas.ModuleSecurity, logger),
		c.Advisor,
	}
	c.Coordinator, err = coordinator.New(cfg.Coordinator, sched, eventBus, logger, modules, coordinator.WithMetricsRecorder(recorder))
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	if opts.Traffic {
		c.Traffic, err = simulation.New(cfg.Simulation, sched, eventBus, state, logger)
		if err != nil {
			return nil, err
		}
	}

	if opts.Archive && cfg.Database.URL != "" {
		archive, pool, err := InitializeArchive(ctx, cfg.Database, logger)
		if err != nil {
			c.Shutdown()
			return nil, err
		}
		c.DBPool = pool
		c.Archiver = store.NewArchiver(archive, cfg.Database.ArchiveBuffer, logger)
		eventBus.Subscribe("archiver", c.Archiver.HandleEvent, store.ArchiveTopics...)
	}

	return c, nil
}
