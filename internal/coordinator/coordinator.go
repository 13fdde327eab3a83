// Package coordinator manages the lifecycle of the automation modules. It owns the
// per-module enablement and settings, routes inbound store events to enabled
// modules, and periodically rolls module economics up into efficiency and ROI.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
)

// ErrUnknownModule is returned for a name that is not registered.
var ErrUnknownModule = errors.New("unknown automation module")

// qualityKey is the settings key read as a module's efficiency weight.
const qualityKey = "quality"

// EventBus is the slice of the bus the coordinator needs.
type EventBus interface {
	bus.Publisher
	Subscribe(name string, handler bus.Handler, topics ...bus.Topic) func()
}

// MetricsRecorder receives every metrics roll-up. Implemented by internal/metrics.
type MetricsRecorder interface {
	RecordAutomation(ctx context.Context, efficiency, roi float64, active int)
}

// AutomationConfig is the coordinator's record for one module.
type AutomationConfig struct {
	Enabled  bool           `json:"enabled"`
	Settings map[string]any `json:"settings"`
}

func (c *AutomationConfig) clone() AutomationConfig {
	return AutomationConfig{Enabled: c.Enabled, Settings: copySettings(c.Settings)}
}

// Metrics is the latest roll-up across enabled modules.
type Metrics struct {
	Efficiency    float64   `json:"efficiency"`
	ROI           float64   `json:"roi"`
	Savings       float64   `json:"savings"`
	Cost          float64   `json:"cost"`
	ActiveModules int       `json:"active_modules"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active   []schemas.ModuleName `json:"active"`
	Inactive []schemas.ModuleName `json:"inactive"`
	Metrics  Metrics              `json:"metrics"`
}

// ModuleEvent is the payload of automation:enabled, automation:disabled and
// automation:configured.
type ModuleEvent struct {
	Module   schemas.ModuleName `json:"module"`
	Settings map[string]any     `json:"settings,omitempty"`
}

// ShutdownEvent is the payload of automation:emergencyShutdown.
type ShutdownEvent struct {
	Reason   string               `json:"reason"`
	Disabled []schemas.ModuleName `json:"disabled"`
	At       time.Time            `json:"at"`
}

// routes maps each inbound topic to the modules that handle it.
var routes = map[bus.Topic][]schemas.ModuleName{
	bus.CustomerArrived:             {schemas.ModuleCustomerService},
	bus.InventoryLowStock:           {schemas.ModuleInventory},
	bus.StoreOpened:                 {schemas.ModuleInventory, schemas.ModuleAIAssistant, schemas.ModuleMaintenance, schemas.ModuleSecurity},
	bus.DecisionRequired:            {schemas.ModuleAIAssistant},
	bus.CashierTransactionCompleted: {schemas.ModuleInventory},
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithMetricsRecorder forwards every roll-up to r.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// Coordinator is the automation coordinator.
type Coordinator struct {
	cfg      config.CoordinatorConfig
	sched    *scheduler.Scheduler
	bus      EventBus
	logger   *zap.Logger
	recorder MetricsRecorder

	mu            sync.Mutex
	ctx           context.Context
	modules       map[schemas.ModuleName]schemas.Module
	configs       map[schemas.ModuleName]*AutomationConfig
	metrics       Metrics
	metricsHandle scheduler.Handle
	unsubscribe   []func()
	started       bool
}

// New creates a coordinator over the given modules. Each module name must belong to
// the fixed module set and appear once.
func New(cfg config.CoordinatorConfig, sched *scheduler.Scheduler, eventBus EventBus, logger *zap.Logger, modules []schemas.Module, opts ...Option) (*Coordinator, error) {
	if sched == nil || eventBus == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize coordinator with nil dependencies")
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 30 * time.Second
	}
	c := &Coordinator{
		cfg:     cfg,
		sched:   sched,
		bus:     eventBus,
		logger:  logger.Named("coordinator"),
		ctx:     context.Background(),
		modules: make(map[schemas.ModuleName]schemas.Module, len(modules)),
		configs: make(map[schemas.ModuleName]*AutomationConfig, len(modules)),
	}
	for _, m := range modules {
		if m == nil {
			return nil, fmt.Errorf("nil module")
		}
		name := m.Name()
		if _, err := schemas.ParseModuleName(string(name)); err != nil {
			return nil, err
		}
		if _, dup := c.modules[name]; dup {
			return nil, fmt.Errorf("module %q registered twice", name)
		}
		c.modules[name] = m
		c.configs[name] = &AutomationConfig{Settings: map[string]any{}}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes the inbound routes, schedules the metrics roll-up and enables the
// modules listed in the configuration.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx = ctx
	topics := make([]bus.Topic, 0, len(routes))
	for topic := range routes {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	for _, topic := range topics {
		c.unsubscribe = append(c.unsubscribe, c.bus.Subscribe("coordinator", c.route, topic))
	}
	c.metricsHandle = c.sched.Every("coordinator.metrics", c.cfg.MetricsInterval, func(time.Time) {
		c.UpdateMetrics(c.context())
	})
	c.mu.Unlock()

	for _, raw := range c.cfg.EnabledModules {
		name, err := schemas.ParseModuleName(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownModule, err)
		}
		if err := c.Enable(ctx, name, nil); err != nil {
			return err
		}
	}
	c.logger.Info("Automation coordinator started", zap.Int("modules", len(c.modules)))
	return nil
}

// Stop unsubscribes, cancels the metrics job and disables every module.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	for _, unsub := range c.unsubscribe {
		unsub()
	}
	c.unsubscribe = nil
	c.sched.Cancel(c.metricsHandle)
	for name, m := range c.modules {
		if c.configs[name].Enabled {
			m.SetEnabled(c.ctx, false)
			c.configs[name].Enabled = false
		}
	}
	c.mu.Unlock()
	c.logger.Info("Automation coordinator stopped")
}

func (c *Coordinator) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// Enable switches a module on, merging any settings first. Enabling an enabled module
// only merges settings.
func (c *Coordinator) Enable(ctx context.Context, name schemas.ModuleName, settings map[string]any) error {
	c.mu.Lock()
	m, cfg, err := c.lookup(name)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if len(settings) > 0 {
		if err := c.applyLocked(m, cfg, settings); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	already := cfg.Enabled
	if !already {
		m.SetEnabled(ctx, true)
		cfg.Enabled = true
	}
	snapshot := copySettings(cfg.Settings)
	c.mu.Unlock()

	if already {
		c.logger.Debug("Module already enabled", zap.String("module", string(name)))
		return nil
	}
	c.logger.Info("Module enabled", zap.String("module", string(name)))
	c.publish(ctx, bus.AutomationEnabled, ModuleEvent{Module: name, Settings: snapshot})
	return nil
}

// Disable switches a module off without touching its state or settings.
func (c *Coordinator) Disable(ctx context.Context, name schemas.ModuleName) error {
	c.mu.Lock()
	m, cfg, err := c.lookup(name)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	was := cfg.Enabled
	if was {
		m.SetEnabled(ctx, false)
		cfg.Enabled = false
	}
	c.mu.Unlock()

	if !was {
		return nil
	}
	c.logger.Info("Module disabled", zap.String("module", string(name)))
	c.publish(ctx, bus.AutomationDisabled, ModuleEvent{Module: name})
	return nil
}

// Configure merges settings into a module's configuration, enabled or not. The module
// sees the merged map and may reject it, in which case nothing changes.
func (c *Coordinator) Configure(ctx context.Context, name schemas.ModuleName, settings map[string]any) error {
	c.mu.Lock()
	m, cfg, err := c.lookup(name)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.applyLocked(m, cfg, settings); err != nil {
		c.mu.Unlock()
		return err
	}
	snapshot := copySettings(cfg.Settings)
	c.mu.Unlock()

	c.logger.Info("Module configured", zap.String("module", string(name)), zap.Any("settings", snapshot))
	c.publish(ctx, bus.AutomationConfigured, ModuleEvent{Module: name, Settings: snapshot})
	return nil
}

func (c *Coordinator) applyLocked(m schemas.Module, cfg *AutomationConfig, settings map[string]any) error {
	merged := copySettings(cfg.Settings)
	for k, v := range settings {
		merged[k] = v
	}
	if q, ok := merged[qualityKey]; ok {
		if _, err := cast.ToFloat64E(q); err != nil {
			return fmt.Errorf("invalid %s for %s: %w", qualityKey, m.Name(), err)
		}
	}
	if err := m.Configure(merged); err != nil {
		return fmt.Errorf("configure %s: %w", m.Name(), err)
	}
	cfg.Settings = merged
	return nil
}

func (c *Coordinator) lookup(name schemas.ModuleName) (schemas.Module, *AutomationConfig, error) {
	m, ok := c.modules[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	return m, c.configs[name], nil
}

// Config returns a copy of a module's configuration.
func (c *Coordinator) Config(name schemas.ModuleName) (AutomationConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, cfg, err := c.lookup(name)
	if err != nil {
		return AutomationConfig{}, err
	}
	return cfg.clone(), nil
}

// Status reports which modules are on and the latest metrics.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Active: []schemas.ModuleName{}, Inactive: []schemas.ModuleName{}, Metrics: c.metrics}
	for name, cfg := range c.configs {
		if cfg.Enabled {
			st.Active = append(st.Active, name)
		} else {
			st.Inactive = append(st.Inactive, name)
		}
	}
	sortNames(st.Active)
	sortNames(st.Inactive)
	return st
}

// EmergencyShutdown disables every module in one critical section and resets both the
// coordinator's record and each module's own settings. It never fails.
func (c *Coordinator) EmergencyShutdown(ctx context.Context, reason string) {
	c.mu.Lock()
	var disabled []schemas.ModuleName
	for name, m := range c.modules {
		cfg := c.configs[name]
		if cfg.Enabled {
			m.SetEnabled(ctx, false)
			disabled = append(disabled, name)
		}
		m.Reset()
		c.configs[name] = &AutomationConfig{Settings: map[string]any{}}
	}
	now := c.sched.Now()
	c.mu.Unlock()

	sortNames(disabled)
	c.logger.Warn("Emergency shutdown", zap.String("reason", reason), zap.Int("disabled", len(disabled)))
	c.publish(ctx, bus.AutomationEmergencyShutdown, ShutdownEvent{Reason: reason, Disabled: disabled, At: now})
}

// UpdateMetrics recomputes efficiency and ROI over the enabled modules, publishes them
// and hands them to the metrics recorder.
func (c *Coordinator) UpdateMetrics(ctx context.Context) Metrics {
	c.mu.Lock()
	var (
		quality float64
		savings float64
		cost    float64
		active  int
	)
	for name, cfg := range c.configs {
		if !cfg.Enabled {
			continue
		}
		active++
		quality += qualityOf(cfg.Settings)
		econ := c.modules[name].Economics()
		savings += econ.Savings
		cost += econ.Cost
	}
	m := Metrics{Savings: savings, Cost: cost, ActiveModules: active, UpdatedAt: c.sched.Now()}
	if active > 0 {
		m.Efficiency = quality / float64(active)
	}
	if cost > 0 {
		m.ROI = savings / cost
	}
	c.metrics = m
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.RecordAutomation(ctx, m.Efficiency, m.ROI, m.ActiveModules)
	}
	c.publish(ctx, bus.AutomationMetricsUpdated, m)
	return m
}

// route forwards an inbound event to every enabled module registered for its topic.
func (c *Coordinator) route(ctx context.Context, msg bus.Message) error {
	var targets []schemas.Module
	c.mu.Lock()
	for _, name := range routes[msg.Topic] {
		m, ok := c.modules[name]
		if !ok {
			continue
		}
		if !c.configs[name].Enabled {
			c.logger.Debug("Ignoring event for disabled module",
				zap.String("topic", string(msg.Topic)),
				zap.String("module", string(name)),
			)
			continue
		}
		targets = append(targets, m)
	}
	c.mu.Unlock()

	var errs []error
	for _, m := range targets {
		if err := m.HandleEvent(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) publish(ctx context.Context, topic bus.Topic, payload any) {
	if err := c.bus.Publish(ctx, topic, payload); err != nil {
		c.logger.Debug("Failed to publish", zap.String("topic", string(topic)), zap.Error(err))
	}
}

func qualityOf(settings map[string]any) float64 {
	v, ok := settings[qualityKey]
	if !ok {
		return 1
	}
	q, err := cast.ToFloat64E(v)
	if err != nil {
		return 1
	}
	return q
}

func copySettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortNames(names []schemas.ModuleName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
