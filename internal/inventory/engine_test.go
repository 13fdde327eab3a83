package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/clock"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

var epoch = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []bus.Message
}

func (r *recorder) handle(_ context.Context, msg bus.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg)
	return nil
}

func (r *recorder) payloads(topic bus.Topic) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, m := range r.events {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

type harness struct {
	clk      *clock.Fake
	sched    *scheduler.Scheduler
	state    *world.State
	recorder *recorder
	engine   *Engine
}

func newHarness(t *testing.T, mutate func(*config.InventoryConfig)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, err := scheduler.New(clk, logger)
	require.NoError(t, err)

	eventBus := bus.New(logger, clk)
	rec := &recorder{}
	eventBus.Subscribe("recorder", rec.handle,
		bus.InventoryStatusUpdate, bus.InventoryRestockOrdered, bus.InventoryDeliveryReceived,
		bus.InventoryDailyAnalysis, bus.InventoryLowStock)

	state := world.NewState(clk, 500)
	// milk: reorder point 10, 8 on hand.
	state.AddProduct(world.Product{ID: "milk", Category: "dairy", Cost: 1, Price: 2, Stock: 8, MaxStock: 50, LeadTimeDays: 2, Supplier: "Hillside Dairy"})
	// coffee: well stocked, no sales.
	state.AddProduct(world.Product{ID: "coffee", Category: "pantry", Cost: 5, Price: 9, Stock: 45, MaxStock: 50, LeadTimeDays: 3, Supplier: "Roastworks"})

	cfg := config.NewDefaultConfig().Inventory
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, sched, eventBus, state, logger)
	require.NoError(t, err)
	return &harness{clk: clk, sched: sched, state: state, recorder: rec, engine: e}
}

func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	_, err := h.sched.Advance(d)
	require.NoError(t, err)
}

func TestNew_ValidatesDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clk := clock.NewFake(epoch)
	sched, _ := scheduler.New(clk, logger)
	cfg := config.NewDefaultConfig().Inventory

	_, err := New(cfg, sched, nil, world.NewState(clk, 0), logger)
	assert.ErrorContains(t, err, "publisher cannot be nil")

	cfg.MaxOrderQuantity = 0
	_, err = New(cfg, sched, bus.New(logger, clk), world.NewState(clk, 0), logger)
	assert.ErrorContains(t, err, "max_order_quantity")
}

func TestRunCheck_OrdersWhatNeedsRestock(t *testing.T) {
	h := newHarness(t, nil)

	report := h.engine.RunCheck()
	assert.Equal(t, 2, report.Products)
	assert.Equal(t, []string{"milk"}, report.NeedsRestock)
	require.Len(t, report.Ordered, 1)

	order := report.Ordered[0]
	assert.Equal(t, "milk", order.ProductID)
	// Floor demand gives an EOQ of ~85, capped by the 42 units of room.
	assert.Equal(t, 42, order.Quantity)
	assert.InDelta(t, 42.0, order.TotalCost, 1e-9)
	assert.Equal(t, UrgencyHigh, order.Urgency)
	assert.Equal(t, OrderPending, order.Status)
	assert.Equal(t, epoch.Add(48*time.Hour), order.ExpectedDelivery)
	assert.Equal(t, 1, report.PendingOrders)

	assert.Len(t, h.recorder.payloads(bus.InventoryRestockOrdered), 1)
	assert.Len(t, h.recorder.payloads(bus.InventoryStatusUpdate), 1)

	rec, ok := h.engine.Record("milk")
	require.True(t, ok)
	assert.Equal(t, 10, rec.ReorderPoint)
}

func TestRunCheck_AtMostOnePendingOrderPerProduct(t *testing.T) {
	h := newHarness(t, nil)

	h.engine.RunCheck()
	second := h.engine.RunCheck()
	assert.Equal(t, []string{"milk"}, second.NeedsRestock, "still needs restock")
	assert.Empty(t, second.Ordered, "but an order is already outstanding")
	assert.Len(t, h.engine.Pending(), 1)

	_, err := h.engine.CheckProduct(context.Background(), "milk")
	assert.ErrorIs(t, err, ErrOrderPending)

	c := Candidate{Record: Record{ProductID: "milk", Cost: 1}, Quantity: 5, Urgency: UrgencyLow, TotalCost: 5}
	_, err = h.engine.PlaceOrder(context.Background(), c)
	assert.ErrorIs(t, err, ErrOrderPending)
	pending := h.engine.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 42, pending[0].Quantity, "second attempt is a no-op")
	assert.Len(t, h.recorder.payloads(bus.InventoryRestockOrdered), 1)
}

func TestDelivery_UpdatesWorldAndFreesSlot(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.RunCheck()

	h.advance(t, 47*time.Hour)
	stock, _ := h.state.Stock("milk")
	assert.Equal(t, 8, stock, "not delivered before lead time")

	h.advance(t, time.Hour)
	stock, _ = h.state.Stock("milk")
	assert.Equal(t, 50, stock)
	assert.InDelta(t, 458, h.state.Cash(), 1e-9)
	assert.Empty(t, h.engine.Pending())

	history := h.engine.History()
	require.Len(t, history, 1)
	assert.Equal(t, OrderDelivered, history[0].Status)
	assert.Equal(t, epoch.Add(48*time.Hour), history[0].DeliveredAt)

	delivered := h.recorder.payloads(bus.InventoryDeliveryReceived)
	require.Len(t, delivered, 1)
	assert.Equal(t, "milk", delivered[0].(Order).ProductID)

	// The slot is free again: a fresh shortage orders again.
	_, err := h.state.AdjustStock("milk", -45)
	require.NoError(t, err)
	order, err := h.engine.CheckProduct(context.Background(), "milk")
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestBudget_SkipsWhatDoesNotFit(t *testing.T) {
	h := newHarness(t, func(cfg *config.InventoryConfig) { cfg.BudgetLimit = 20 })

	report := h.engine.RunCheck()
	assert.Empty(t, report.Ordered)
	assert.Equal(t, []string{"milk"}, report.OverBudget)
	assert.Zero(t, report.BudgetUsed)

	_, err := h.engine.CheckProduct(context.Background(), "milk")
	assert.ErrorIs(t, err, ErrBudgetExceeded)

	require.NoError(t, h.engine.Configure(map[string]any{"budgetLimit": "100"}))
	assert.Len(t, h.engine.RunCheck().Ordered, 1)
}

func TestCheckProduct(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	order, err := h.engine.CheckProduct(ctx, "coffee")
	assert.NoError(t, err)
	assert.Nil(t, order)

	_, err = h.engine.CheckProduct(ctx, "caviar")
	assert.ErrorIs(t, err, world.ErrUnknownProduct)

	require.NoError(t, h.engine.HandleEvent(ctx, bus.Message{Topic: bus.InventoryLowStock, Payload: "milk"}))
	assert.Len(t, h.engine.Pending(), 1)
	// A repeat trigger for a product on order is not an error.
	assert.NoError(t, h.engine.HandleEvent(ctx, bus.Message{Topic: bus.InventoryLowStock, Payload: LowStockAlert{ProductID: "milk"}}))
}

func TestRefreshForecasts_UsesSalesHistory(t *testing.T) {
	h := newHarness(t, nil)
	for d := 30; d >= 1; d-- {
		qty := 5
		if d <= 10 {
			qty = 8
		}
		h.state.RecordSaleAt("coffee", qty, float64(qty)*9, epoch.Add(-time.Duration(d)*day+time.Hour))
	}

	h.engine.RefreshForecasts()
	f, ok := h.engine.Forecast("coffee")
	require.True(t, ok)
	assert.InDelta(t, 6.0, f.DailyDemand, 1e-9)
	assert.Equal(t, TrendIncreasing, f.Trend)
	assert.Len(t, h.engine.Forecasts(), 2)

	// 45 units at 6 a day is 7.5 days of cover, more than the 4-day buffer.
	assert.Equal(t, []string{"milk"}, h.engine.RunCheck().NeedsRestock)
	_, err := h.state.AdjustStock("coffee", -22)
	require.NoError(t, err)
	report := h.engine.RunCheck()
	require.Len(t, report.Ordered, 1)
	assert.Equal(t, "coffee", report.Ordered[0].ProductID)
	assert.Equal(t, UrgencyMedium, report.Ordered[0].Urgency)
}

func TestRunCheck_FullShelfIsNotOrdered(t *testing.T) {
	h := newHarness(t, nil)
	h.state.AddProduct(world.Product{ID: "ice", Category: "frozen", Cost: 1, Price: 3, Stock: 50, MaxStock: 50, LeadTimeDays: 2, Supplier: "Polar"})
	for d := 30; d >= 1; d-- {
		h.state.RecordSaleAt("ice", 30, 90, epoch.Add(-time.Duration(d)*day+time.Hour))
	}
	h.engine.RefreshForecasts()

	report := h.engine.RunCheck()
	assert.NotContains(t, report.NeedsRestock, "ice")
	for _, o := range report.Ordered {
		assert.NotEqual(t, "ice", o.ProductID)
	}

	order, err := h.engine.CheckProduct(context.Background(), "ice")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestSetEnabled_RunsCheckCycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.engine.SetEnabled(ctx, true)

	h.advance(t, 4*time.Minute)
	assert.Empty(t, h.engine.Pending())
	h.advance(t, time.Minute)
	assert.Len(t, h.engine.Pending(), 1)

	h.engine.SetEnabled(ctx, false)
	h.advance(t, 2*time.Hour)
	assert.Len(t, h.recorder.payloads(bus.InventoryStatusUpdate), 1)

	econ := h.engine.Economics()
	cfg := config.NewDefaultConfig().Inventory
	assert.InDelta(t, cfg.LaborSavingPerOrder, econ.Savings, 1e-9)
	assert.InDelta(t, cfg.HourlyCost*5.0/60, econ.Cost, 1e-9)
}

func TestWatchSale_ThrottlesLowStockTriggers(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sale := bus.Message{Topic: bus.CashierTransactionCompleted, Payload: cashier.Transaction{
		Status: cashier.StatusCompleted,
		Items:  []cashier.Item{{ProductID: "milk", Quantity: 1}, {ProductID: "milk", Quantity: 1}, {ProductID: "coffee", Quantity: 1}},
	}}

	require.NoError(t, h.engine.HandleEvent(ctx, sale))
	require.NoError(t, h.engine.HandleEvent(ctx, sale))
	alerts := h.recorder.payloads(bus.InventoryLowStock)
	require.Len(t, alerts, 1)
	assert.Equal(t, LowStockAlert{ProductID: "milk", CurrentStock: 8, ReorderPoint: 10}, alerts[0])

	// Six per hour refills one token every ten minutes.
	h.advance(t, 11*time.Minute)
	require.NoError(t, h.engine.HandleEvent(ctx, sale))
	assert.Len(t, h.recorder.payloads(bus.InventoryLowStock), 2)

	failed := bus.Message{Topic: bus.CashierTransactionCompleted, Payload: cashier.Transaction{Status: cashier.StatusFailed, Items: sale.Payload.(cashier.Transaction).Items}}
	h.advance(t, time.Hour)
	require.NoError(t, h.engine.HandleEvent(ctx, failed))
	assert.Len(t, h.recorder.payloads(bus.InventoryLowStock), 2)
}

func TestDailyAnalysis(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.HandleEvent(context.Background(), bus.Message{Topic: bus.StoreOpened}))

	reports := h.recorder.payloads(bus.InventoryDailyAnalysis)
	require.Len(t, reports, 1)
	r := reports[0].(DailyReport)
	assert.Equal(t, 1, r.LowStock)
	assert.Equal(t, 1, r.Overstock)
	assert.InDelta(t, 8*1+45*5, r.StockValue, 1e-9)
	assert.Zero(t, r.PendingOrders)
}

func TestConfigure(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.Configure(map[string]any{"seasonalAdjustment": "false", "maxOrderQuantity": 10.0, "quality": 0.8}))

	report := h.engine.RunCheck()
	require.Len(t, report.Ordered, 1)
	assert.Equal(t, 10, report.Ordered[0].Quantity)

	assert.Error(t, h.engine.Configure(map[string]any{"budgetLimit": -1}))
	assert.Error(t, h.engine.Configure(map[string]any{"maxOrderQuantity": 0}))
	assert.Error(t, h.engine.Configure(map[string]any{"seasonalAdjustment": "sometimes"}))
}

func TestReset_RestoresConstructorSettings(t *testing.T) {
	h := newHarness(t, nil)
	defaults := h.engine.cfg
	require.NoError(t, h.engine.Configure(map[string]any{"seasonalAdjustment": "false", "maxOrderQuantity": 10.0, "budgetLimit": 5}))
	require.NotEqual(t, defaults, h.engine.cfg)

	h.engine.Reset()
	assert.Equal(t, defaults, h.engine.cfg)
}
