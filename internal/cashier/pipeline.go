// Package cashier implements the automated till: a bounded-concurrency queue that walks
// each customer transaction through greeting, scanning, upsell, totalling, payment and
// farewell, escalating to a human whenever the automated path cannot finish.
package cashier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/api/schemas"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/config"
	"github.com/xkilldash9x/shopkeep/internal/scheduler"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

// window is a [min,max] range for a simulated stage delay.
type window struct{ min, max time.Duration }

var (
	greetingDelay = window{1 * time.Second, 2 * time.Second}
	scanDelay     = window{500 * time.Millisecond, 1500 * time.Millisecond}
	rescanDelay   = window{1 * time.Second, 3 * time.Second}
	upsellDelay   = window{1 * time.Second, 2 * time.Second}
	totalDelay    = window{500 * time.Millisecond, 1 * time.Second}
	farewellDelay = window{500 * time.Millisecond, 1500 * time.Millisecond}

	paymentDelay = map[PaymentMethod]window{
		PaymentCard:   {2 * time.Second, 4 * time.Second},
		PaymentCash:   {3 * time.Second, 6 * time.Second},
		PaymentMobile: {1 * time.Second, 3 * time.Second},
	}
)

const upsellAcceptRate = 0.5

type event struct {
	topic   bus.Topic
	payload interface{}
}

// Pipeline is the automated cashier module.
type Pipeline struct {
	sched     *scheduler.Scheduler
	publisher bus.Publisher
	state     *world.State
	logger    *zap.Logger

	mu            sync.Mutex
	cfg           config.CashierConfig
	defaults      config.CashierConfig
	ctx           context.Context
	rng           *rand.Rand
	enabled       bool
	enabledAt     time.Time
	enabledFor    time.Duration
	tickHandle    scheduler.Handle
	metricsHandle scheduler.Handle

	queue      []*Transaction
	processing map[string]*Transaction
	history    []*Transaction
	peak       int
	completed  int
	failed     int
	escalated  int
	metrics    Metrics
}

var _ schemas.Module = (*Pipeline)(nil)

// New creates the cashier. rng drives every simulated delay and chance; a nil rng
// gets a fixed seed.
func New(cfg config.CashierConfig, sched *scheduler.Scheduler, publisher bus.Publisher, state *world.State, rng *rand.Rand, logger *zap.Logger) (*Pipeline, error) {
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
		return nil, fmt.Errorf("invalid cashier configuration: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = 20
	}
	return &Pipeline{
		sched:      sched,
		publisher:  publisher,
		state:      state,
		logger:     logger.Named("cashier"),
		cfg:        cfg,
		defaults:   cfg,
		ctx:        context.Background(),
		rng:        rng,
		processing: make(map[string]*Transaction),
	}, nil
}

// Name implements schemas.Module.
func (p *Pipeline) Name() schemas.ModuleName { return schemas.ModuleCustomerService }

// SetEnabled starts or stops the admission tick and the metrics refresh. Transactions
// already in processing always run to a terminal state.
func (p *Pipeline) SetEnabled(ctx context.Context, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx != nil {
		p.ctx = ctx
	}
	if enabled == p.enabled {
		return
	}
	now := p.sched.Now()
	if enabled {
		p.enabledAt = now
		p.tickHandle = p.sched.Every("cashier.tick", p.cfg.TickInterval, func(time.Time) { p.Tick() })
		p.metricsHandle = p.sched.Every("cashier.metrics", p.cfg.MetricsInterval, func(time.Time) { p.RefreshMetrics() })
		p.logger.Info("Automated cashier started", zap.Int("max_concurrent", p.cfg.MaxConcurrent))
	} else {
		p.sched.Cancel(p.tickHandle)
		p.sched.Cancel(p.metricsHandle)
		p.enabledFor += now.Sub(p.enabledAt)
		p.logger.Info("Automated cashier stopped", zap.Int("queued", len(p.queue)), zap.Int("processing", len(p.processing)))
	}
	p.enabled = enabled
}

// Configure applies escalationThreshold and maxConcurrent. Other keys are ignored.
func (p *Pipeline) Configure(settings map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.cfg
	if v, ok := settings["escalationThreshold"]; ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("escalationThreshold: %w", err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("escalationThreshold must be within [0,1], got %v", f)
		}
		next.EscalationThreshold = f
	}
	if v, ok := settings["maxConcurrent"]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("maxConcurrent: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("maxConcurrent must be positive, got %d", n)
		}
		next.MaxConcurrent = n
	}
	p.cfg = next
	return nil
}

// Reset drops every Configure override. In-flight transactions are not affected.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = p.defaults
}

// Economics implements schemas.Module. Savings accrue per completed transaction; cost
// accrues per hour the module has been enabled.
func (p *Pipeline) Economics() schemas.Economics {
	p.mu.Lock()
	defer p.mu.Unlock()
	running := p.enabledFor
	if p.enabled {
		running += p.sched.Now().Sub(p.enabledAt)
	}
	return schemas.Economics{
		Savings: float64(p.completed) * p.cfg.LaborSavingPerTransaction,
		Cost:    running.Hours() * p.cfg.HourlyCost,
	}
}

// HandleEvent accepts customer:arrived events.
func (p *Pipeline) HandleEvent(ctx context.Context, msg bus.Message) error {
	if msg.Topic != bus.CustomerArrived {
		return nil
	}
	var c Customer
	switch v := msg.Payload.(type) {
	case Customer:
		c = v
	case *Customer:
		if v == nil {
			return fmt.Errorf("nil customer in %s", msg.Topic)
		}
		c = *v
	default:
		return fmt.Errorf("unexpected payload %T for topic %s", msg.Payload, msg.Topic)
	}
	p.Submit(ctx, c)
	return nil
}

// Submit scores the customer for escalation. A customer at or over the threshold is
// handed to a human at once and never queued; everyone else joins the back of the
// queue. Exactly one of the results is non-nil.
func (p *Pipeline) Submit(ctx context.Context, c Customer) (*Transaction, *EscalationNotice) {
	now := p.sched.Now()

	p.mu.Lock()
	score := EscalationScore(c)
	if ShouldEscalate(c, p.cfg.EscalationThreshold) {
		p.escalated++
		p.mu.Unlock()

		notice := &EscalationNotice{
			CustomerID: c.ID,
			Reason:     "risk factors at or above escalation threshold",
			Score:      score,
			Factors:    ActiveFactors(c),
			At:         now,
		}
		p.logger.Info("Customer escalated before queueing",
			zap.String("customer_id", c.ID),
			zap.Float64("score", score),
			zap.Strings("factors", notice.Factors),
		)
		p.emit(ctx, []event{{bus.CashierEscalation, *notice}})
		return nil, notice
	}

	tx := &Transaction{
		ID:         uuid.NewString(),
		CustomerID: c.ID,
		Items:      append([]Item(nil), c.Cart...),
		Status:     StatusQueued,
		QueuedAt:   now,
	}
	p.queue = append(p.queue, tx)
	snapshot := tx.clone()
	queued := len(p.queue)
	p.mu.Unlock()

	p.logger.Debug("Customer queued", zap.String("transaction_id", tx.ID), zap.Int("queue_length", queued))
	return &snapshot, nil
}

// Tick admits queued transactions, oldest first, while fewer than MaxConcurrent are
// processing. It returns the number admitted.
func (p *Pipeline) Tick() int {
	p.mu.Lock()
	ctx := p.ctx
	var events []event
	admitted := 0
	for len(p.queue) > 0 && len(p.processing) < p.cfg.MaxConcurrent {
		tx := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		events = append(events, p.admitLocked(tx))
		admitted++
	}
	p.mu.Unlock()

	p.emit(ctx, events)
	return admitted
}

func (p *Pipeline) admitLocked(tx *Transaction) event {
	tx.Status = StatusProcessing
	tx.StartedAt = p.sched.Now()
	p.processing[tx.ID] = tx
	if n := len(p.processing); n > p.peak {
		p.peak = n
	}
	p.afterLocked(tx, "greeting", p.delayLocked(greetingDelay), p.greet)
	return event{bus.CashierTransactionStarted, tx.clone()}
}

// -- stages --

func (p *Pipeline) greet(tx *Transaction) {
	p.mu.Lock()
	events := []event{p.sayLocked(tx, "robot", "Welcome! I'll ring you up today.")}
	p.scheduleScanLocked(tx, 0)
	ctx := p.ctx
	p.mu.Unlock()
	p.emit(ctx, events)
}

// scheduleScanLocked queues the scan of item idx, or moves on once every item is scanned.
func (p *Pipeline) scheduleScanLocked(tx *Transaction, idx int) {
	if idx >= len(tx.Items) {
		if p.rng.Float64() < p.cfg.UpsellRate {
			p.afterLocked(tx, "upsell", p.delayLocked(upsellDelay), p.upsell)
			return
		}
		p.afterLocked(tx, "total", p.delayLocked(totalDelay), p.total)
		return
	}
	delay := p.delayLocked(scanDelay)
	anomaly := p.rng.Float64() < p.cfg.ScanErrorRate
	if anomaly {
		delay += p.delayLocked(rescanDelay)
	}
	p.afterLocked(tx, "scan", delay, func(tx *Transaction) { p.scan(tx, idx, anomaly) })
}

func (p *Pipeline) scan(tx *Transaction, idx int, anomaly bool) {
	p.mu.Lock()
	var events []event
	if anomaly {
		tx.ScanErrors++
		p.logger.Debug("Rescanning item",
			zap.String("transaction_id", tx.ID),
			zap.String("product_id", tx.Items[idx].ProductID),
			zap.Error(ErrScanAnomaly),
		)
		events = append(events, p.sayLocked(tx, "robot", "Sorry, that one didn't scan. Trying again."))
	}
	p.scheduleScanLocked(tx, idx+1)
	ctx := p.ctx
	p.mu.Unlock()
	p.emit(ctx, events)
}

func (p *Pipeline) upsell(tx *Transaction) {
	p.mu.Lock()
	var events []event
	cheapest := cheapestItem(tx.Items)
	if cheapest == nil {
		p.afterLocked(tx, "total", p.delayLocked(totalDelay), p.total)
		ctx := p.ctx
		p.mu.Unlock()
		p.emit(ctx, events)
		return
	}
	events = append(events, p.sayLocked(tx, "robot", fmt.Sprintf("Would you like another %s?", cheapest.Name)))
	if p.rng.Float64() < upsellAcceptRate {
		add := *cheapest
		add.Quantity = 1
		tx.Items = append(tx.Items, add)
		tx.Upsold = true
		events = append(events, p.sayLocked(tx, "customer", "Sure, why not."))
	} else {
		events = append(events, p.sayLocked(tx, "customer", "No thanks."))
	}
	p.afterLocked(tx, "total", p.delayLocked(totalDelay), p.total)
	ctx := p.ctx
	p.mu.Unlock()
	p.emit(ctx, events)
}

func (p *Pipeline) total(tx *Transaction) {
	p.mu.Lock()
	var subtotal float64
	for _, it := range tx.Items {
		subtotal += it.Price * float64(it.Quantity)
	}
	tx.Subtotal = roundCents(subtotal)
	tx.Tax = roundCents(subtotal * p.cfg.TaxRate)
	tx.Total = roundCents(tx.Subtotal + tx.Tax)
	tx.PaymentMethod = paymentMethods[p.rng.Intn(len(paymentMethods))]

	events := []event{p.sayLocked(tx, "robot", fmt.Sprintf("That comes to %.2f. Paying by %s?", tx.Total, tx.PaymentMethod))}
	p.afterLocked(tx, "payment", p.delayLocked(paymentDelay[tx.PaymentMethod]), p.pay)
	ctx := p.ctx
	p.mu.Unlock()
	p.emit(ctx, events)
}

func (p *Pipeline) pay(tx *Transaction) {
	p.mu.Lock()
	if p.rng.Float64() < p.cfg.PaymentFailureRate {
		p.mu.Unlock()
		p.fail(tx, fmt.Errorf("%w: %s payment declined", ErrPaymentFailure, tx.PaymentMethod))
		return
	}
	events := []event{p.sayLocked(tx, "robot", "Payment accepted.")}
	p.afterLocked(tx, "farewell", p.delayLocked(farewellDelay), p.farewell)
	ctx := p.ctx
	p.mu.Unlock()
	p.emit(ctx, events)
}

func (p *Pipeline) farewell(tx *Transaction) {
	p.mu.Lock()
	events := []event{p.sayLocked(tx, "robot", "Thanks for shopping with us!")}
	now := p.sched.Now()
	tx.CompletedAt = now
	tx.Status = StatusCompleted
	tx.Satisfaction = satisfactionScore(tx.Duration(), unitCount(tx.Items), len(tx.ConversationLog), p.jitterLocked())
	p.finishLocked(tx)
	p.completed++
	snapshot := tx.clone()
	ctx := p.ctx
	p.mu.Unlock()

	p.settle(snapshot)
	p.logger.Info("Transaction completed",
		zap.String("transaction_id", tx.ID),
		zap.Float64("total", snapshot.Total),
		zap.Duration("duration", snapshot.Duration()),
		zap.Float64("satisfaction", snapshot.Satisfaction),
	)
	events = append(events, event{bus.CashierTransactionCompleted, snapshot})
	p.emit(ctx, events)
}

// settle books a completed sale into the world: cash and revenue, stock and the
// sales ledger used for forecasting.
func (p *Pipeline) settle(tx Transaction) {
	p.state.Credit(tx.Total, "sale "+tx.ID)
	for _, it := range tx.Items {
		if _, err := p.state.AdjustStock(it.ProductID, -it.Quantity); err != nil {
			p.logger.Debug("Sold item is not stocked", zap.String("product_id", it.ProductID), zap.Error(err))
			continue
		}
		p.state.RecordSale(it.ProductID, it.Quantity, it.Price*float64(it.Quantity))
	}
	p.state.RecordSatisfaction(tx.Satisfaction)
}

func (p *Pipeline) fail(tx *Transaction, cause error) {
	p.mu.Lock()
	tx.CompletedAt = p.sched.Now()
	tx.Status = StatusFailed
	tx.FailureReason = cause.Error()
	p.finishLocked(tx)
	p.failed++
	p.escalated++
	snapshot := tx.clone()
	ctx := p.ctx
	p.mu.Unlock()

	p.logger.Warn("Transaction failed, escalating", zap.String("transaction_id", tx.ID), zap.Error(cause))
	notice := EscalationNotice{
		CustomerID:    tx.CustomerID,
		TransactionID: tx.ID,
		Reason:        cause.Error(),
		At:            snapshot.CompletedAt,
	}
	p.emit(ctx, []event{
		{bus.CashierTransactionCompleted, snapshot},
		{bus.CashierEscalation, notice},
	})
}

// finishLocked moves tx out of processing and into the bounded history.
func (p *Pipeline) finishLocked(tx *Transaction) {
	delete(p.processing, tx.ID)
	p.history = append(p.history, tx)
	if over := len(p.history) - p.cfg.HistorySize; over > 0 {
		p.history = append([]*Transaction(nil), p.history[over:]...)
	}
}

// -- helpers --

func (p *Pipeline) afterLocked(tx *Transaction, stage string, delay time.Duration, next func(*Transaction)) {
	p.sched.After("cashier."+stage, delay, func(time.Time) { next(tx) })
}

func (p *Pipeline) delayLocked(w window) time.Duration {
	return w.min + time.Duration(p.rng.Float64()*float64(w.max-w.min))
}

func (p *Pipeline) jitterLocked() float64 {
	return (p.rng.Float64()*2 - 1) * 0.05
}

func (p *Pipeline) sayLocked(tx *Transaction, speaker, text string) event {
	tx.ConversationLog = append(tx.ConversationLog, ConversationLine{At: p.sched.Now(), Speaker: speaker, Text: text})
	return event{bus.CashierConversation, ConversationEvent{TransactionID: tx.ID, Speaker: speaker, Text: text}}
}

func (p *Pipeline) emit(ctx context.Context, events []event) {
	for _, e := range events {
		if err := p.publisher.Publish(ctx, e.topic, e.payload); err != nil {
			p.logger.Debug("Failed to publish cashier event", zap.String("topic", string(e.topic)), zap.Error(err))
		}
	}
}

// -- reads --

// Transaction returns a snapshot of the transaction with the given ID, wherever it is.
func (p *Pipeline) Transaction(id string) (Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tx, ok := p.processing[id]; ok {
		return tx.clone(), true
	}
	for _, tx := range p.queue {
		if tx.ID == id {
			return tx.clone(), true
		}
	}
	for _, tx := range p.history {
		if tx.ID == id {
			return tx.clone(), true
		}
	}
	return Transaction{}, false
}

// History returns snapshots of retained terminal transactions, oldest first.
func (p *Pipeline) History() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, len(p.history))
	for i, tx := range p.history {
		out[i] = tx.clone()
	}
	return out
}

// QueueLength is the number of transactions waiting for a slot.
func (p *Pipeline) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Processing is the number of transactions currently in processing.
func (p *Pipeline) Processing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processing)
}

// PeakProcessing is the highest processing count ever observed.
func (p *Pipeline) PeakProcessing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func cheapestItem(items []Item) *Item {
	if len(items) == 0 {
		return nil
	}
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
	return &sorted[0]
}

func unitCount(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
