// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Cashier     CashierConfig     `mapstructure:"cashier" yaml:"cashier"`
	Inventory   InventoryConfig   `mapstructure:"inventory" yaml:"inventory"`
	Advisor     AdvisorConfig     `mapstructure:"advisor" yaml:"advisor"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Simulation  SimulationConfig  `mapstructure:"simulation" yaml:"simulation"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the archive database connection details. An empty URL
// disables archiving.
type DatabaseConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	ArchiveBuffer int    `mapstructure:"archive_buffer" yaml:"archive_buffer"`
}

// SchedulerConfig tunes the real-time scheduler loop.
type SchedulerConfig struct {
	Resolution time.Duration `mapstructure:"resolution" yaml:"resolution"`
}

// CoordinatorConfig configures the automation coordinator.
type CoordinatorConfig struct {
	MetricsInterval time.Duration `mapstructure:"metrics_interval" yaml:"metrics_interval"`
	// EnabledModules lists the modules switched on at start-up.
	EnabledModules []string `mapstructure:"enabled_modules" yaml:"enabled_modules"`
}

// CashierConfig configures the automated transaction pipeline.
type CashierConfig struct {
	TickInterval              time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	MetricsInterval           time.Duration `mapstructure:"metrics_interval" yaml:"metrics_interval"`
	MaxConcurrent             int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	EscalationThreshold       float64       `mapstructure:"escalation_threshold" yaml:"escalation_threshold"`
	TaxRate                   float64       `mapstructure:"tax_rate" yaml:"tax_rate"`
	ScanErrorRate             float64       `mapstructure:"scan_error_rate" yaml:"scan_error_rate"`
	UpsellRate                float64       `mapstructure:"upsell_rate" yaml:"upsell_rate"`
	PaymentFailureRate        float64       `mapstructure:"payment_failure_rate" yaml:"payment_failure_rate"`
	HistorySize               int           `mapstructure:"history_size" yaml:"history_size"`
	MetricsWindow             int           `mapstructure:"metrics_window" yaml:"metrics_window"`
	LaborSavingPerTransaction float64       `mapstructure:"labor_saving_per_transaction" yaml:"labor_saving_per_transaction"`
	HourlyCost                float64       `mapstructure:"hourly_cost" yaml:"hourly_cost"`
}

// InventoryConfig configures the replenishment engine.
type InventoryConfig struct {
	CheckInterval       time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	ForecastInterval    time.Duration `mapstructure:"forecast_interval" yaml:"forecast_interval"`
	ForecastWindowDays  int           `mapstructure:"forecast_window_days" yaml:"forecast_window_days"`
	ReorderFraction     float64       `mapstructure:"reorder_fraction" yaml:"reorder_fraction"`
	OrderingCost        float64       `mapstructure:"ordering_cost" yaml:"ordering_cost"`
	HoldingCostRate     float64       `mapstructure:"holding_cost_rate" yaml:"holding_cost_rate"`
	MaxOrderQuantity    int           `mapstructure:"max_order_quantity" yaml:"max_order_quantity"`
	BudgetLimit         float64       `mapstructure:"budget_limit" yaml:"budget_limit"`
	SeasonalAdjustment  bool          `mapstructure:"seasonal_adjustment" yaml:"seasonal_adjustment"`
	DemandFloor         float64       `mapstructure:"demand_floor" yaml:"demand_floor"`
	HistorySize         int           `mapstructure:"history_size" yaml:"history_size"`
	LowStockChecksPerHr float64       `mapstructure:"low_stock_checks_per_hour" yaml:"low_stock_checks_per_hour"`
	LowStockBurst       int           `mapstructure:"low_stock_burst" yaml:"low_stock_burst"`
	LaborSavingPerOrder float64       `mapstructure:"labor_saving_per_order" yaml:"labor_saving_per_order"`
	HourlyCost          float64       `mapstructure:"hourly_cost" yaml:"hourly_cost"`
}

// AdvisorConfig configures the decision advisor.
type AdvisorConfig struct {
	AnalysisInterval  time.Duration `mapstructure:"analysis_interval" yaml:"analysis_interval"`
	HistorySize       int           `mapstructure:"history_size" yaml:"history_size"`
	InitialConfidence float64       `mapstructure:"initial_confidence" yaml:"initial_confidence"`
	InitialCreativity float64       `mapstructure:"initial_creativity" yaml:"initial_creativity"`
	LearningRate      float64       `mapstructure:"learning_rate" yaml:"learning_rate"`
	DecisionValue     float64       `mapstructure:"decision_value" yaml:"decision_value"`
	HourlyCost        float64       `mapstructure:"hourly_cost" yaml:"hourly_cost"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
}

// SimulationConfig drives the demo store used by the CLI.
type SimulationConfig struct {
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
	CustomersPerHour float64 `mapstructure:"customers_per_hour" yaml:"customers_per_hour"`
	DecisionsPerDay  int     `mapstructure:"decisions_per_day" yaml:"decisions_per_day"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "shopkeep")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.archive_buffer", 256)

	// -- Scheduler --
	v.SetDefault("scheduler.resolution", "100ms")

	// -- Coordinator --
	v.SetDefault("coordinator.metrics_interval", "30s")
	v.SetDefault("coordinator.enabled_modules", []string{"customerService", "inventory", "aiAssistant"})

	// -- Cashier --
	v.SetDefault("cashier.tick_interval", "1s")
	v.SetDefault("cashier.metrics_interval", "10s")
	v.SetDefault("cashier.max_concurrent", 3)
	v.SetDefault("cashier.escalation_threshold", 0.7)
	v.SetDefault("cashier.tax_rate", 0.08)
	v.SetDefault("cashier.scan_error_rate", 0.05)
	v.SetDefault("cashier.upsell_rate", 0.3)
	v.SetDefault("cashier.payment_failure_rate", 0.02)
	v.SetDefault("cashier.history_size", 100)
	v.SetDefault("cashier.metrics_window", 20)
	v.SetDefault("cashier.labor_saving_per_transaction", 0.75)
	v.SetDefault("cashier.hourly_cost", 4.0)

	// -- Inventory --
	v.SetDefault("inventory.check_interval", "5m")
	v.SetDefault("inventory.forecast_interval", "1h")
	v.SetDefault("inventory.forecast_window_days", 30)
	v.SetDefault("inventory.reorder_fraction", 0.2)
	v.SetDefault("inventory.ordering_cost", 10.0)
	v.SetDefault("inventory.holding_cost_rate", 0.1)
	v.SetDefault("inventory.max_order_quantity", 100)
	v.SetDefault("inventory.budget_limit", 1000.0)
	v.SetDefault("inventory.seasonal_adjustment", true)
	v.SetDefault("inventory.demand_floor", 0.1)
	v.SetDefault("inventory.history_size", 200)
	v.SetDefault("inventory.low_stock_checks_per_hour", 6.0)
	v.SetDefault("inventory.low_stock_burst", 1)
	v.SetDefault("inventory.labor_saving_per_order", 12.0)
	v.SetDefault("inventory.hourly_cost", 2.0)

	// -- Advisor --
	v.SetDefault("advisor.analysis_interval", "15m")
	v.SetDefault("advisor.history_size", 50)
	v.SetDefault("advisor.initial_confidence", 0.7)
	v.SetDefault("advisor.initial_creativity", 0.5)
	v.SetDefault("advisor.learning_rate", 0.05)
	v.SetDefault("advisor.decision_value", 25.0)
	v.SetDefault("advisor.hourly_cost", 1.5)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "shopkeep")
	v.SetDefault("metrics.addr", ":9464")

	// -- Simulation --
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.customers_per_hour", 40.0)
	v.SetDefault("simulation.decisions_per_day", 4)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The archive DSN usually carries a password; keep it out of config files.
	_ = v.BindEnv("database.url", "SHOPKEEP_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Cashier.Validate(); err != nil {
		return fmt.Errorf("cashier configuration invalid: %w", err)
	}
	if err := c.Inventory.Validate(); err != nil {
		return fmt.Errorf("inventory configuration invalid: %w", err)
	}
	if err := c.Advisor.Validate(); err != nil {
		return fmt.Errorf("advisor configuration invalid: %w", err)
	}
	if c.Coordinator.MetricsInterval <= 0 {
		return fmt.Errorf("coordinator.metrics_interval must be a positive duration")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// Validate checks the cashier configuration.
func (c *CashierConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be a positive integer")
	}
	if c.EscalationThreshold < 0 || c.EscalationThreshold > 1 {
		return fmt.Errorf("escalation_threshold must be between 0.0 and 1.0")
	}
	for name, rate := range map[string]float64{
		"tax_rate":             c.TaxRate,
		"scan_error_rate":      c.ScanErrorRate,
		"upsell_rate":          c.UpsellRate,
		"payment_failure_rate": c.PaymentFailureRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	if c.TickInterval <= 0 || c.MetricsInterval <= 0 {
		return fmt.Errorf("tick_interval and metrics_interval must be positive durations")
	}
	return nil
}

// Validate checks the inventory configuration.
func (c *InventoryConfig) Validate() error {
	if c.ReorderFraction <= 0 || c.ReorderFraction >= 1 {
		return fmt.Errorf("reorder_fraction must be between 0.0 and 1.0 (exclusive)")
	}
	if c.OrderingCost <= 0 || c.HoldingCostRate <= 0 {
		return fmt.Errorf("ordering_cost and holding_cost_rate must be positive")
	}
	if c.MaxOrderQuantity < 1 {
		return fmt.Errorf("max_order_quantity must be at least 1")
	}
	if c.BudgetLimit < 0 {
		return fmt.Errorf("budget_limit cannot be negative")
	}
	if c.DemandFloor <= 0 {
		return fmt.Errorf("demand_floor must be positive")
	}
	if c.ForecastWindowDays < 3 {
		return fmt.Errorf("forecast_window_days must be at least 3")
	}
	if c.CheckInterval <= 0 || c.ForecastInterval <= 0 {
		return fmt.Errorf("check_interval and forecast_interval must be positive durations")
	}
	return nil
}

// Validate checks the advisor configuration.
func (c *AdvisorConfig) Validate() error {
	if c.InitialConfidence < 0.1 || c.InitialConfidence > 1 {
		return fmt.Errorf("initial_confidence must be between 0.1 and 1.0")
	}
	if c.InitialCreativity < 0.1 || c.InitialCreativity > 1 {
		return fmt.Errorf("initial_creativity must be between 0.1 and 1.0")
	}
	if c.LearningRate <= 0 || c.LearningRate > 0.5 {
		return fmt.Errorf("learning_rate must be in (0, 0.5]")
	}
	if c.AnalysisInterval <= 0 {
		return fmt.Errorf("analysis_interval must be a positive duration")
	}
	return nil
}
