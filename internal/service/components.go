// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/coordinator"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
	"github.com/xkilldash9x/shopkeep/internal/metrics"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/simulation"
	"github.com/xkilldash9x/shopkeep/internal/store"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

// Components holds the fully wired automation engine and its optional outer services.
type Components struct {
	Clock       clock.Clock
	Scheduler   *scheduler.Scheduler
	Bus         *bus.EventBus
	State       *world.State
	Cashier     *cashier.Pipeline
	Inventory   *inventory.Engine
	Advisor     *advisor.Advisor
	Coordinator *coordinator.Coordinator
	Traffic     *simulation.Traffic

	// Optional: nil when metrics are disabled.
	Metrics *metrics.Provider
	// Optional: nil when no database is configured.
	Archiver *store.Archiver
	DBPool   *pgxpool.Pool

	logger *zap.Logger
}

// Start enables the configured modules and, when present, starts store traffic.
func (c *Components) Start(ctx context.Context) error {
	if err := c.Coordinator.Start(ctx); err != nil {
		return err
	}
	if c.Traffic != nil {
		c.Traffic.Start(ctx)
	}
	return nil
}

// Shutdown stops producers before consumers: traffic, then the modules, then the bus,
// metrics and the database pool. The archiver is drained by cancelling its Run context
// before Shutdown is called.
func (c *Components) Shutdown() {
	c.logger.Debug("Beginning components shutdown sequence.")

	if c.Traffic != nil {
		c.Traffic.Stop()
	}
	if c.Coordinator != nil {
		c.Coordinator.Stop()
	}
	if c.Bus != nil {
		c.Bus.Shutdown()
	}
	if c.Metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Metrics.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("Error during metrics provider shutdown.", zap.Error(err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		c.logger.Debug("Database connection pool closed.")
	}
	c.logger.Info("All components shut down.")
}
