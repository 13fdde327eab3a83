package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
)

// PeerModule is a module with no domain behaviour of its own, used for maintenance
// and security. It tracks enablement and settings so the coordinator can manage it
// like any other module.
type PeerModule struct {
	name   schemas.ModuleName
	logger *zap.Logger

	mu       sync.Mutex
	enabled  bool
	settings map[string]any
	sweeps   int
}

var _ schemas.Module = (*PeerModule)(nil)

// NewPeerModule creates a peer module.
func NewPeerModule(name schemas.ModuleName, logger *zap.Logger) *PeerModule {
	return &PeerModule{name: name, logger: logger.Named(string(name)), settings: map[string]any{}}
}

func (p *PeerModule) Name() schemas.ModuleName { return p.name }

func (p *PeerModule) SetEnabled(_ context.Context, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

func (p *PeerModule) Configure(settings map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = copySettings(settings)
	return nil
}

func (p *PeerModule) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = map[string]any{}
}

// Settings returns a copy of the last applied settings.
func (p *PeerModule) Settings() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copySettings(p.settings)
}

func (p *PeerModule) Economics() schemas.Economics { return schemas.Economics{} }

// HandleEvent counts a routine sweep when the store opens.
func (p *PeerModule) HandleEvent(_ context.Context, msg bus.Message) error {
	if msg.Topic != bus.StoreOpened {
		return nil
	}
	p.mu.Lock()
	p.sweeps++
	n := p.sweeps
	p.mu.Unlock()
	p.logger.Debug("Opening sweep", zap.Int("sweep", n))
	return nil
}

// Enabled reports whether the module is on.
func (p *PeerModule) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Sweeps reports how many store openings the module has handled.
func (p *PeerModule) Sweeps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweeps
}
