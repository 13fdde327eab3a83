package schemas

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/shopkeep/internal/bus"
)

// ModuleName identifies an automation module managed by the coordinator.
type ModuleName string

const (
	ModuleCustomerService ModuleName = "customerService"
	ModuleInventory       ModuleName = "inventory"
	ModuleMaintenance     ModuleName = "maintenance"
	ModuleSecurity        ModuleName = "security"
	ModuleAIAssistant     ModuleName = "aiAssistant"
)

// AllModules returns the fixed set of module names in registration order.
func AllModules() []ModuleName {
	return []ModuleName{
		ModuleCustomerService,
		ModuleInventory,
		ModuleMaintenance,
		ModuleSecurity,
		ModuleAIAssistant,
	}
}

// ParseModuleName validates s against the fixed module set.
func ParseModuleName(s string) (ModuleName, error) {
	for _, m := range AllModules() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown module name %q", s)
}

// Economics is what a module reports for ROI: the labour value it saved and what
// it cost to run, both in currency units accumulated since start.
type Economics struct {
	Savings float64 `json:"savings"`
	Cost    float64 `json:"cost"`
}

// Module is the contract every automation module satisfies so the coordinator can
// manage it without knowing what it does.
type Module interface {
	Name() ModuleName
	// SetEnabled starts or stops the module's periodic work. ctx scopes the
	// events it publishes while enabled.
	SetEnabled(ctx context.Context, enabled bool)
	// Configure applies the merged settings map. It rejects invalid values and
	// leaves the module unchanged in that case.
	Configure(settings map[string]any) error
	// Reset restores the settings the module was constructed with.
	Reset()
	Economics() Economics
	// HandleEvent receives inbound triggers routed by the coordinator.
	HandleEvent(ctx context.Context, msg bus.Message) error
}
