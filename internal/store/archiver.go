package store

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/bus"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
)

const (
	defaultBuffer        = 256
	defaultFlushInterval = 2 * time.Second
	maxBatchRecords      = 100
)

// ArchiveTopics are the events the archiver persists.
var ArchiveTopics = []bus.Topic{
	bus.CashierTransactionCompleted,
	bus.CashierEscalation,
	bus.InventoryRestockOrdered,
	bus.InventoryDeliveryReceived,
	bus.AdvisorRecommendation,
}

// Persister is what the archiver writes batches to.
type Persister interface {
	PersistBatch(ctx context.Context, b *Batch) error
}

// Archiver decouples the synchronous bus from the database. HandleEvent only enqueues;
// Run drains the queue and writes batches.
type Archiver struct {
	store         Persister
	logger        *zap.Logger
	queue         chan bus.Message
	flushInterval time.Duration
	dropped       atomic.Int64
	written       atomic.Int64
}

// NewArchiver creates an archiver with a queue of the given size.
func NewArchiver(store Persister, buffer int, logger *zap.Logger) *Archiver {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Archiver{
		store:         store,
		logger:        logger.Named("archiver"),
		queue:         make(chan bus.Message, buffer),
		flushInterval: defaultFlushInterval,
	}
}

// HandleEvent enqueues msg without blocking. A full queue drops the event.
func (a *Archiver) HandleEvent(_ context.Context, msg bus.Message) error {
	select {
	case a.queue <- msg:
	default:
		a.dropped.Add(1)
		a.logger.Warn("Archive queue full, dropping event", zap.String("topic", string(msg.Topic)))
	}
	return nil
}

// Run writes queued events until ctx is cancelled, then flushes what remains.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := &Batch{}
	for {
		select {
		case <-ctx.Done():
			a.drain(batch)
			// The run context is gone; the final flush gets its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			a.flush(flushCtx, batch)
			cancel()
			a.logger.Info("Archiver stopped", zap.Int64("written", a.written.Load()), zap.Int64("dropped", a.dropped.Load()))
			return nil
		case msg := <-a.queue:
			a.add(batch, msg)
			if batch.Len() >= maxBatchRecords {
				batch = a.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = a.flush(ctx, batch)
		}
	}
}

func (a *Archiver) drain(batch *Batch) {
	for {
		select {
		case msg := <-a.queue:
			a.add(batch, msg)
		default:
			return
		}
	}
}

func (a *Archiver) add(b *Batch, msg bus.Message) {
	switch v := msg.Payload.(type) {
	case cashier.Transaction:
		b.Transactions = append(b.Transactions, v)
	case cashier.EscalationNotice:
		b.Escalations = append(b.Escalations, v)
	case inventory.Order:
		b.Orders = append(b.Orders, v)
	case advisor.RecommendationSet:
		b.Recommendations = append(b.Recommendations, v)
	default:
		a.logger.Debug("Ignoring unarchivable payload", zap.String("topic", string(msg.Topic)))
	}
}

// flush writes b and returns an empty batch. Failed batches are logged and discarded.
func (a *Archiver) flush(ctx context.Context, b *Batch) *Batch {
	n := b.Len()
	if n == 0 {
		return b
	}
	if err := a.store.PersistBatch(ctx, b); err != nil {
		a.logger.Error("Failed to archive batch", zap.Int("records", n), zap.Error(err))
	} else {
		a.written.Add(int64(n))
	}
	return &Batch{}
}

// Written is the number of records persisted so far.
func (a *Archiver) Written() int64 { return a.written.Load() }

// Dropped is the number of events lost to a full queue.
func (a *Archiver) Dropped() int64 { return a.dropped.Load() }
