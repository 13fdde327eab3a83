// Package simulation generates the inbound store traffic the automation engine reacts
// to: customer arrivals, daily openings and management decisions.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

const day = 24 * time.Hour

// Customer traits are drawn independently with these probabilities.
const (
	angryRate      = 0.08
	complaintRate  = 0.05
	specialRate    = 0.1
	paymentRate    = 0.04
	vipRate        = 0.1
	maxCartLines   = 4
	maxLineUnits   = 3
	workloadJitter = 0.05
)

var moods = []string{"happy", "neutral", "neutral", "rushed"}

var decisionTypes = []advisor.DecisionType{
	advisor.DecisionPricing,
	advisor.DecisionHiring,
	advisor.DecisionInventory,
	advisor.DecisionExpansion,
	advisor.DecisionCustomerService,
}

// Counts summarizes the traffic generated so far.
type Counts struct {
	Customers int `json:"customers"`
	Openings  int `json:"openings"`
	Decisions int `json:"decisions"`
}

// Traffic publishes synthetic inbound events on the scheduler.
type Traffic struct {
	cfg       config.SimulationConfig
	sched     *scheduler.Scheduler
	publisher bus.Publisher
	state     *world.State
	logger    *zap.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	ctx     context.Context
	handles []scheduler.Handle
	counts  Counts
}

// New creates a traffic generator seeded from cfg.Seed.
func New(cfg config.SimulationConfig, sched *scheduler.Scheduler, publisher bus.Publisher, state *world.State, logger *zap.Logger) (*Traffic, error) {
	if sched == nil || publisher == nil || state == nil || logger == nil {
		return nil, errors.New("cannot initialize traffic generator with nil dependencies")
	}
	if cfg.CustomersPerHour < 0 || math.IsNaN(cfg.CustomersPerHour) {
		return nil, fmt.Errorf("customers_per_hour must not be negative")
	}
	if cfg.DecisionsPerDay < 0 {
		return nil, fmt.Errorf("decisions_per_day must not be negative")
	}
	return &Traffic{
		cfg:       cfg,
		sched:     sched,
		publisher: publisher,
		state:     state,
		logger:    logger.Named("traffic"),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		ctx:       context.Background(),
	}, nil
}

// Start opens the store immediately and schedules arrivals, daily openings and
// decisions.
func (t *Traffic) Start(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	if t.cfg.CustomersPerHour > 0 {
		every := time.Duration(float64(time.Hour) / t.cfg.CustomersPerHour)
		t.handles = append(t.handles, t.sched.Every("traffic.arrival", every, func(time.Time) { t.Arrive() }))
	}
	t.handles = append(t.handles, t.sched.Every("traffic.open", day, func(time.Time) { t.Open() }))
	if t.cfg.DecisionsPerDay > 0 {
		every := day / time.Duration(t.cfg.DecisionsPerDay)
		t.handles = append(t.handles, t.sched.Every("traffic.decision", every, func(time.Time) { t.Decide() }))
	}
	t.mu.Unlock()

	t.logger.Info("Store traffic started",
		zap.Float64("customers_per_hour", t.cfg.CustomersPerHour),
		zap.Int("decisions_per_day", t.cfg.DecisionsPerDay),
	)
	t.Open()
}

// Stop cancels all scheduled traffic.
func (t *Traffic) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.handles {
		t.sched.Cancel(h)
	}
	t.handles = nil
}

// Arrive publishes one customer with a random cart drawn from the catalogue.
func (t *Traffic) Arrive() {
	products := t.state.Products()
	t.mu.Lock()
	t.counts.Customers++
	c := t.customerLocked(t.counts.Customers, products)
	ctx := t.ctx
	t.mu.Unlock()
	t.publish(ctx, bus.CustomerArrived, c)
}

func (t *Traffic) customerLocked(n int, products []world.Product) cashier.Customer {
	c := cashier.Customer{
		ID:             fmt.Sprintf("cust-%05d", n),
		Name:           fmt.Sprintf("Customer %d", n),
		Mood:           moods[t.rng.Intn(len(moods))],
		HasComplaint:   t.rng.Float64() < complaintRate,
		SpecialRequest: t.rng.Float64() < specialRate,
		PaymentIssue:   t.rng.Float64() < paymentRate,
		VIP:            t.rng.Float64() < vipRate,
	}
	if t.rng.Float64() < angryRate {
		c.Mood = "angry"
	}
	var inStock []world.Product
	for _, p := range products {
		if p.Stock > 0 {
			inStock = append(inStock, p)
		}
	}
	if len(inStock) == 0 {
		return c
	}
	lines := 1 + t.rng.Intn(maxCartLines)
	for _, i := range t.rng.Perm(len(inStock)) {
		if len(c.Cart) == lines {
			break
		}
		p := inStock[i]
		qty := 1 + t.rng.Intn(maxLineUnits)
		if qty > p.Stock {
			qty = p.Stock
		}
		c.Cart = append(c.Cart, cashier.Item{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: qty})
	}
	return c
}

// Open publishes store:opened and lets staff workloads drift.
func (t *Traffic) Open() {
	staff := t.state.Staff()
	t.mu.Lock()
	t.counts.Openings++
	for _, m := range staff {
		t.state.SetWorkload(m.ID, m.Workload+t.rng.NormFloat64()*workloadJitter)
	}
	ctx := t.ctx
	t.mu.Unlock()
	t.publish(ctx, bus.StoreOpened, t.sched.Now())
}

// Decide publishes a decision of a random type.
func (t *Traffic) Decide() {
	t.mu.Lock()
	t.counts.Decisions++
	d := advisor.Decision{
		ID:   fmt.Sprintf("decision-%04d", t.counts.Decisions),
		Type: decisionTypes[t.rng.Intn(len(decisionTypes))],
	}
	d.Description = fmt.Sprintf("Routine %s review", d.Type)
	ctx := t.ctx
	t.mu.Unlock()
	t.publish(ctx, bus.DecisionRequired, d)
}

// Counts reports how much traffic has been generated.
func (t *Traffic) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

func (t *Traffic) publish(ctx context.Context, topic bus.Topic, payload interface{}) {
	if err := t.publisher.Publish(ctx, topic, payload); err != nil {
		t.logger.Debug("Failed to publish traffic", zap.String("topic", string(topic)), zap.Error(err))
	}
}
