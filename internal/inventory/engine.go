// Package inventory implements automated replenishment: demand forecasting, a reorder
// policy built on the economic order quantity, urgency ranking, budgeted batch ordering
// and simulated supplier deliveries.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

const (
	day = 24 * time.Hour
	// overstockRatio marks a shelf as overstocked in the daily analysis.
	overstockRatio = 0.9
)

type event struct {
	topic   bus.Topic
	payload interface{}
}

// Engine is the automated inventory module.
type Engine struct {
	sched     *scheduler.Scheduler
	publisher bus.Publisher
	state     *world.State
	logger    *zap.Logger

	mu             sync.Mutex
	cfg            config.InventoryConfig
	defaults       config.InventoryConfig
	ctx            context.Context
	enabled        bool
	enabledAt      time.Time
	enabledFor     time.Duration
	checkHandle    scheduler.Handle
	forecastHandle scheduler.Handle

	records   map[string]Record
	forecasts map[string]Forecast
	pending   map[string]*Order
	history   []Order
	limiters  map[string]*rate.Limiter
	placed    int
	delivered int
}

var _ schemas.Module = (*Engine)(nil)

// New creates the replenishment engine.
func New(cfg config.InventoryConfig, sched *scheduler.Scheduler, publisher bus.Publisher, state *world.State, logger *zap.Logger) (*Engine, error) {
	if sched == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if state == nil {
		return nil, errors.New("world state cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inventory configuration: %w", err)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	return &Engine{
		sched:     sched,
		publisher: publisher,
		state:     state,
		logger:    logger.Named("inventory"),
		cfg:       cfg,
		defaults:  cfg,
		ctx:       context.Background(),
		records:   make(map[string]Record),
		forecasts: make(map[string]Forecast),
		pending:   make(map[string]*Order),
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// Name implements schemas.Module.
func (e *Engine) Name() schemas.ModuleName { return schemas.ModuleInventory }

// SetEnabled starts or stops the check and forecast cycles. Forecasts are refreshed
// immediately on start so the first check has demand to work with. Pending deliveries
// arrive regardless.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) {
	e.mu.Lock()
	if ctx != nil {
		e.ctx = ctx
	}
	if enabled == e.enabled {
		e.mu.Unlock()
		return
	}
	now := e.sched.Now()
	e.enabled = enabled
	if !enabled {
		e.sched.Cancel(e.checkHandle)
		e.sched.Cancel(e.forecastHandle)
		e.enabledFor += now.Sub(e.enabledAt)
		e.mu.Unlock()
		e.logger.Info("Automated inventory stopped")
		return
	}
	e.enabledAt = now
	e.checkHandle = e.sched.Every("inventory.check", e.cfg.CheckInterval, func(time.Time) { e.RunCheck() })
	e.forecastHandle = e.sched.Every("inventory.forecast", e.cfg.ForecastInterval, func(time.Time) { e.RefreshForecasts() })
	e.mu.Unlock()

	e.RefreshForecasts()
	e.logger.Info("Automated inventory started",
		zap.Duration("check_interval", e.cfg.CheckInterval),
		zap.Float64("budget_limit", e.cfg.BudgetLimit),
	)
}

// Configure applies budgetLimit, seasonalAdjustment and maxOrderQuantity.
func (e *Engine) Configure(settings map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg
	if v, ok := settings["budgetLimit"]; ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("budgetLimit: %w", err)
		}
		if f < 0 {
			return fmt.Errorf("budgetLimit cannot be negative, got %v", f)
		}
		next.BudgetLimit = f
	}
	if v, ok := settings["seasonalAdjustment"]; ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("seasonalAdjustment: %w", err)
		}
		next.SeasonalAdjustment = b
	}
	if v, ok := settings["maxOrderQuantity"]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("maxOrderQuantity: %w", err)
		}
		if n < 1 {
			return fmt.Errorf("maxOrderQuantity must be at least 1, got %d", n)
		}
		next.MaxOrderQuantity = n
	}
	e.cfg = next
	return nil
}

// Reset restores the budget, seasonal and order-size settings to their configured
// defaults. Pending orders stay outstanding.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = e.defaults
}

// Economics implements schemas.Module.
func (e *Engine) Economics() schemas.Economics {
	e.mu.Lock()
	defer e.mu.Unlock()
	running := e.enabledFor
	if e.enabled {
		running += e.sched.Now().Sub(e.enabledAt)
	}
	return schemas.Economics{
		Savings: float64(e.placed) * e.cfg.LaborSavingPerOrder,
		Cost:    running.Hours() * e.cfg.HourlyCost,
	}
}

// HandleEvent reacts to low-stock triggers, store opening and completed sales.
func (e *Engine) HandleEvent(ctx context.Context, msg bus.Message) error {
	switch msg.Topic {
	case bus.InventoryLowStock:
		id, err := productIDFrom(msg)
		if err != nil {
			return err
		}
		_, err = e.CheckProduct(ctx, id)
		if errors.Is(err, ErrOrderPending) || errors.Is(err, ErrBudgetExceeded) {
			e.logger.Debug("Low-stock trigger did not place an order", zap.String("product_id", id), zap.Error(err))
			return nil
		}
		return err
	case bus.StoreOpened:
		e.DailyAnalysis(ctx)
		return nil
	case bus.CashierTransactionCompleted:
		tx, err := bus.Payload[cashier.Transaction](msg)
		if err != nil {
			return err
		}
		e.watchSale(ctx, tx)
		return nil
	}
	return nil
}

func productIDFrom(msg bus.Message) (string, error) {
	switch v := msg.Payload.(type) {
	case string:
		return v, nil
	case LowStockAlert:
		return v.ProductID, nil
	case world.Product:
		return v.ID, nil
	case *world.Product:
		if v != nil {
			return v.ID, nil
		}
	}
	return "", fmt.Errorf("unexpected payload %T for topic %s", msg.Payload, msg.Topic)
}

// -- forecasting --

// RefreshForecasts recomputes every product's forecast from the trailing sales window.
func (e *Engine) RefreshForecasts() {
	now := e.sched.Now()
	products := e.state.Products()

	e.mu.Lock()
	window := e.cfg.ForecastWindowDays
	e.mu.Unlock()

	fresh := make(map[string]Forecast, len(products))
	for _, p := range products {
		fresh[p.ID] = ComputeForecast(p.ID, e.state.DailySales(p.ID, window, now), now)
	}

	e.mu.Lock()
	e.forecasts = fresh
	e.mu.Unlock()
	e.logger.Debug("Demand forecasts refreshed", zap.Int("products", len(fresh)))
}

// Forecast returns the current forecast for a product.
func (e *Engine) Forecast(productID string) (Forecast, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.forecasts[productID]
	return f, ok
}

// Forecasts returns all current forecasts ordered by product ID.
func (e *Engine) Forecasts() []Forecast {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Forecast, 0, len(e.forecasts))
	for _, f := range e.forecasts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// -- check cycle --

func (e *Engine) policyLocked() Policy {
	return Policy{
		ReorderFraction:    e.cfg.ReorderFraction,
		OrderingCost:       e.cfg.OrderingCost,
		HoldingCostRate:    e.cfg.HoldingCostRate,
		MaxOrderQuantity:   e.cfg.MaxOrderQuantity,
		SeasonalAdjustment: e.cfg.SeasonalAdjustment,
		DemandFloor:        e.cfg.DemandFloor,
	}
}

func (e *Engine) recordFor(p world.Product) Record {
	return Record{
		ProductID:    p.ID,
		Category:     p.Category,
		CurrentStock: p.Stock,
		MaxStock:     p.MaxStock,
		ReorderPoint: ReorderPoint(p.MaxStock, e.cfg.ReorderFraction),
		Cost:         p.Cost,
		LeadTimeDays: p.LeadTimeDays,
		Supplier:     p.Supplier,
	}
}

// candidateLocked evaluates one product. It returns false when no order is needed
// or the shelf has no room left.
func (e *Engine) candidateLocked(rec Record, month time.Month) (Candidate, bool) {
	fc := e.forecasts[rec.ProductID]
	if !NeedsRestock(rec, fc.DailyDemand, e.cfg.DemandFloor) {
		return Candidate{}, false
	}
	qty := e.policyLocked().OrderQuantity(rec, fc.DailyDemand, month)
	if qty == 0 {
		return Candidate{}, false
	}
	return Candidate{
		Record:    rec,
		Quantity:  qty,
		Urgency:   UrgencyFor(rec, fc.Trend),
		TotalCost: roundCents(float64(qty) * rec.Cost),
	}, true
}

// RunCheck is one replenishment pass: refresh the stock cache, pick products that
// need restocking and have nothing on order, and place what the budget allows.
func (e *Engine) RunCheck() CheckReport {
	now := e.sched.Now()
	products := e.state.Products()

	e.mu.Lock()
	ctx := e.ctx
	report := CheckReport{CheckedAt: now, Products: len(products)}
	var candidates []Candidate
	for _, p := range products {
		rec := e.recordFor(p)
		e.records[p.ID] = rec
		c, needed := e.candidateLocked(rec, now.Month())
		if !needed {
			continue
		}
		report.NeedsRestock = append(report.NeedsRestock, p.ID)
		if _, busy := e.pending[p.ID]; busy {
			continue
		}
		candidates = append(candidates, c)
	}

	admitted, skipped := PlanBatch(candidates, e.cfg.BudgetLimit)
	var events []event
	for _, c := range admitted {
		order := e.placeLocked(c, now)
		report.Ordered = append(report.Ordered, order)
		events = append(events, event{bus.InventoryRestockOrdered, order})
	}
	for _, c := range skipped {
		report.OverBudget = append(report.OverBudget, c.Record.ProductID)
		e.logger.Info("Restock skipped this cycle",
			zap.String("product_id", c.Record.ProductID),
			zap.Float64("cost", c.TotalCost),
			zap.Error(ErrBudgetExceeded),
		)
	}
	report.BudgetUsed = batchCost(admitted)
	report.PendingOrders = len(e.pending)
	e.mu.Unlock()

	events = append(events, event{bus.InventoryStatusUpdate, report})
	e.emit(ctx, events)
	return report
}

// CheckProduct evaluates a single product out of cycle. It returns the placed order,
// nil if no restock is needed, ErrOrderPending if one is already outstanding and
// ErrBudgetExceeded if the order would not fit the budget.
func (e *Engine) CheckProduct(ctx context.Context, productID string) (*Order, error) {
	p, ok := e.state.Product(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", world.ErrUnknownProduct, productID)
	}
	now := e.sched.Now()

	e.mu.Lock()
	rec := e.recordFor(p)
	e.records[p.ID] = rec
	if _, busy := e.pending[productID]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderPending, productID)
	}
	c, needed := e.candidateLocked(rec, now.Month())
	if !needed {
		e.mu.Unlock()
		return nil, nil
	}
	if admitted, _ := PlanBatch([]Candidate{c}, e.cfg.BudgetLimit); len(admitted) == 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s costs %.2f", ErrBudgetExceeded, productID, c.TotalCost)
	}
	order := e.placeLocked(c, now)
	e.mu.Unlock()

	e.emit(ctx, []event{{bus.InventoryRestockOrdered, order}})
	return &order, nil
}

// PlaceOrder places a restock order for a candidate outside the budget planner. A
// second order for a product that already has one outstanding is refused with
// ErrOrderPending and changes nothing.
func (e *Engine) PlaceOrder(ctx context.Context, c Candidate) (Order, error) {
	now := e.sched.Now()
	e.mu.Lock()
	if _, busy := e.pending[c.Record.ProductID]; busy {
		e.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s", ErrOrderPending, c.Record.ProductID)
	}
	order := e.placeLocked(c, now)
	e.mu.Unlock()

	e.emit(ctx, []event{{bus.InventoryRestockOrdered, order}})
	return order, nil
}

func (e *Engine) placeLocked(c Candidate, now time.Time) Order {
	lead := time.Duration(c.Record.LeadTimeDays) * day
	order := &Order{
		ID:               uuid.NewString(),
		ProductID:        c.Record.ProductID,
		Supplier:         c.Record.Supplier,
		Quantity:         c.Quantity,
		UnitCost:         c.Record.Cost,
		TotalCost:        c.TotalCost,
		OrderDate:        now,
		ExpectedDelivery: now.Add(lead),
		Urgency:          c.Urgency,
		Status:           OrderPending,
	}
	e.pending[order.ProductID] = order
	e.placed++
	productID := order.ProductID
	e.sched.After("inventory.delivery", lead, func(time.Time) { e.deliver(productID) })

	e.logger.Info("Restock ordered",
		zap.String("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
		zap.Float64("total_cost", order.TotalCost),
		zap.String("urgency", string(order.Urgency)),
		zap.Time("expected_delivery", order.ExpectedDelivery),
	)
	return *order
}

// deliver books an arrived order: stock goes up, cash goes down, the slot frees.
func (e *Engine) deliver(productID string) {
	now := e.sched.Now()
	e.mu.Lock()
	order, ok := e.pending[productID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, productID)
	order.Status = OrderDelivered
	order.DeliveredAt = now
	e.history = append(e.history, *order)
	if over := len(e.history) - e.cfg.HistorySize; over > 0 {
		e.history = append([]Order(nil), e.history[over:]...)
	}
	e.delivered++
	delivered := *order
	ctx := e.ctx
	e.mu.Unlock()

	if _, err := e.state.AdjustStock(productID, delivered.Quantity); err != nil {
		e.logger.Warn("Delivery for a product no longer stocked", zap.String("product_id", productID), zap.Error(err))
	}
	e.state.Debit(delivered.TotalCost, "restock "+productID)
	e.logger.Info("Delivery received", zap.String("product_id", productID), zap.Int("quantity", delivered.Quantity))
	e.emit(ctx, []event{{bus.InventoryDeliveryReceived, delivered}})
}

// watchSale raises a throttled inventory:lowStock for each sold product that is at or
// below its reorder point.
func (e *Engine) watchSale(ctx context.Context, tx cashier.Transaction) {
	if tx.Status != cashier.StatusCompleted {
		return
	}
	now := e.sched.Now()
	var events []event
	seen := make(map[string]bool, len(tx.Items))

	e.mu.Lock()
	for _, it := range tx.Items {
		if seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		p, ok := e.state.Product(it.ProductID)
		if !ok {
			continue
		}
		rp := ReorderPoint(p.MaxStock, e.cfg.ReorderFraction)
		if p.Stock > rp {
			continue
		}
		if !e.limiterLocked(p.ID).AllowN(now, 1) {
			continue
		}
		events = append(events, event{bus.InventoryLowStock, LowStockAlert{ProductID: p.ID, CurrentStock: p.Stock, ReorderPoint: rp}})
	}
	e.mu.Unlock()
	e.emit(ctx, events)
}

func (e *Engine) limiterLocked(productID string) *rate.Limiter {
	l, ok := e.limiters[productID]
	if !ok {
		perSecond := rate.Limit(e.cfg.LowStockChecksPerHr / 3600)
		burst := e.cfg.LowStockBurst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(perSecond, burst)
		e.limiters[productID] = l
	}
	return l
}

// DailyAnalysis summarizes the shelf and publishes inventory:dailyAnalysis.
func (e *Engine) DailyAnalysis(ctx context.Context) DailyReport {
	now := e.sched.Now()
	products := e.state.Products()

	e.mu.Lock()
	report := DailyReport{Date: now, PendingOrders: len(e.pending)}
	for _, p := range products {
		if p.Stock <= ReorderPoint(p.MaxStock, e.cfg.ReorderFraction) {
			report.LowStock++
		}
		if p.MaxStock > 0 && float64(p.Stock) >= overstockRatio*float64(p.MaxStock) {
			report.Overstock++
		}
		report.StockValue += float64(p.Stock) * p.Cost
		if f, ok := e.forecasts[p.ID]; ok && f.Trend == TrendIncreasing {
			report.Rising = append(report.Rising, p.ID)
		}
	}
	report.StockValue = roundCents(report.StockValue)
	e.mu.Unlock()

	e.logger.Info("Daily inventory analysis",
		zap.Int("low_stock", report.LowStock),
		zap.Int("overstock", report.Overstock),
		zap.Float64("stock_value", report.StockValue),
		zap.Int("pending_orders", report.PendingOrders),
	)
	e.emit(ctx, []event{{bus.InventoryDailyAnalysis, report}})
	return report
}

// -- reads --

// Pending returns outstanding orders ordered by product ID.
func (e *Engine) Pending() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.pending))
	for _, o := range e.pending {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// History returns delivered orders, oldest first.
func (e *Engine) History() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Order(nil), e.history...)
}

// Record returns the cached stock record for a product as of the last check.
func (e *Engine) Record(productID string) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[productID]
	return r, ok
}

func (e *Engine) emit(ctx context.Context, events []event) {
	for _, ev := range events {
		if err := e.publisher.Publish(ctx, ev.topic, ev.payload); err != nil {
			e.logger.Debug("Failed to publish inventory event", zap.String("topic", string(ev.topic)), zap.Error(err))
		}
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
