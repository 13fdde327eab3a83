package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/mocks"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

var epoch = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, cfg config.SimulationConfig) (*Traffic, *scheduler.Scheduler, *mocks.MockPublisher, *world.State) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, err := scheduler.New(clk, logger)
	require.NoError(t, err)
	pub := &mocks.MockPublisher{}
	state := world.NewDemoState(clk, 7)
	tr, err := New(cfg, sched, pub, state, logger)
	require.NoError(t, err)
	return tr, sched, pub, state
}

func count(topics []bus.Topic, topic bus.Topic) int {
	n := 0
	for _, tp := range topics {
		if tp == topic {
			n++
		}
	}
	return n
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, err := scheduler.New(clk, logger)
	require.NoError(t, err)
	state := world.NewDemoState(clk, 1)

	_, err = New(config.SimulationConfig{}, nil, &mocks.MockPublisher{}, state, logger)
	assert.Error(t, err)
	_, err = New(config.SimulationConfig{CustomersPerHour: -1}, sched, &mocks.MockPublisher{}, state, logger)
	assert.ErrorContains(t, err, "customers_per_hour")
	_, err = New(config.SimulationConfig{DecisionsPerDay: -2}, sched, &mocks.MockPublisher{}, state, logger)
	assert.ErrorContains(t, err, "decisions_per_day")
}

func TestStart_SchedulesTraffic(t *testing.T) {
	tr, sched, pub, _ := setup(t, config.SimulationConfig{Seed: 3, CustomersPerHour: 12, DecisionsPerDay: 4})

	tr.Start(context.Background())
	assert.Equal(t, []bus.Topic{bus.StoreOpened}, pub.Topics(), "the store opens immediately")

	_, err := sched.Advance(24 * time.Hour)
	require.NoError(t, err)

	topics := pub.Topics()
	assert.Equal(t, 12*24, count(topics, bus.CustomerArrived))
	assert.Equal(t, 4, count(topics, bus.DecisionRequired))
	assert.Equal(t, 2, count(topics, bus.StoreOpened))
	assert.Equal(t, Counts{Customers: 288, Openings: 2, Decisions: 4}, tr.Counts())

	tr.Stop()
	_, err = sched.Advance(24 * time.Hour)
	require.NoError(t, err)
	assert.Len(t, pub.Topics(), len(topics))
	assert.Zero(t, sched.Pending())
}

func TestStart_ZeroRatesOnlyOpen(t *testing.T) {
	tr, sched, pub, _ := setup(t, config.SimulationConfig{})
	tr.Start(context.Background())
	_, err := sched.Advance(48 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []bus.Topic{bus.StoreOpened, bus.StoreOpened, bus.StoreOpened}, pub.Topics())
}

func TestArrive_BuildsInStockCarts(t *testing.T) {
	tr, _, pub, state := setup(t, config.SimulationConfig{Seed: 11})
	stock := map[string]int{}
	for _, p := range state.Products() {
		stock[p.ID] = p.Stock
	}

	for i := 0; i < 50; i++ {
		tr.Arrive()
	}
	require.Len(t, pub.Messages, 50)

	seen := map[string]bool{}
	for _, msg := range pub.Messages {
		c, ok := msg.Payload.(cashier.Customer)
		require.True(t, ok)
		assert.False(t, seen[c.ID], "customer ids are unique")
		seen[c.ID] = true
		assert.NotEmpty(t, c.Cart)
		assert.LessOrEqual(t, len(c.Cart), maxCartLines)
		lines := map[string]bool{}
		for _, it := range c.Cart {
			assert.False(t, lines[it.ProductID], "a product appears once per cart")
			lines[it.ProductID] = true
			assert.GreaterOrEqual(t, it.Quantity, 1)
			assert.LessOrEqual(t, it.Quantity, stock[it.ProductID])
			assert.Positive(t, it.Price)
		}
	}
	assert.Equal(t, "cust-00001", pub.Messages[0].Payload.(cashier.Customer).ID)
}

func TestArrive_EmptyShelvesGiveEmptyCart(t *testing.T) {
	tr, _, pub, state := setup(t, config.SimulationConfig{Seed: 5})
	for _, p := range state.Products() {
		_, err := state.AdjustStock(p.ID, -p.Stock)
		require.NoError(t, err)
	}
	tr.Arrive()
	require.Len(t, pub.Messages, 1)
	assert.Empty(t, pub.Messages[0].Payload.(cashier.Customer).Cart)
}

func TestSameSeedSameTraffic(t *testing.T) {
	a, _, pubA, _ := setup(t, config.SimulationConfig{Seed: 42})
	b, _, pubB, _ := setup(t, config.SimulationConfig{Seed: 42})
	for i := 0; i < 20; i++ {
		a.Arrive()
		b.Arrive()
		a.Decide()
		b.Decide()
	}
	assert.Equal(t, pubA.Messages, pubB.Messages)
}

func TestOpen_DriftsWorkloadWithinBounds(t *testing.T) {
	tr, _, pub, state := setup(t, config.SimulationConfig{Seed: 9})
	for i := 0; i < 200; i++ {
		tr.Open()
	}
	for _, m := range state.Staff() {
		assert.GreaterOrEqual(t, m.Workload, 0.0)
		assert.LessOrEqual(t, m.Workload, 1.0)
	}
	at, ok := pub.Messages[0].Payload.(time.Time)
	require.True(t, ok)
	assert.Equal(t, epoch, at)
}

func TestDecide_PublishesKnownTypes(t *testing.T) {
	tr, _, pub, _ := setup(t, config.SimulationConfig{Seed: 2})
	known := map[advisor.DecisionType]bool{}
	for _, dt := range decisionTypes {
		known[dt] = true
	}
	for i := 0; i < 30; i++ {
		tr.Decide()
	}
	for i, msg := range pub.Messages {
		d := msg.Payload.(advisor.Decision)
		assert.True(t, known[d.Type])
		assert.NotEmpty(t, d.Description)
		if i == 0 {
			assert.Equal(t, "decision-0001", d.ID)
		}
	}
}

func TestPublishErrorsAreSwallowed(t *testing.T) {
	tr, _, pub, _ := setup(t, config.SimulationConfig{Seed: 1})
	pub.Err = errors.New("bus closed")
	assert.NotPanics(t, func() {
		tr.Arrive()
		tr.Open()
		tr.Decide()
	})
	assert.Equal(t, Counts{Customers: 1, Openings: 1, Decisions: 1}, tr.Counts())
}
