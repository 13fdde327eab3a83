// Package store archives the engine's terminal records in PostgreSQL: completed
// transactions, escalations, restock orders and advisor recommendations. The world
// state itself is never persisted here.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/inventory"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Batch is one unit of archived work, written in a single database transaction.
type Batch struct {
	Transactions    []cashier.Transaction
	Escalations     []cashier.EscalationNotice
	Orders          []inventory.Order
	Recommendations []advisor.RecommendationSet
}

// Len is the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Transactions) + len(b.Escalations) + len(b.Orders) + len(b.Recommendations)
}

// TransactionSummary is a row of the transactions archive.
type TransactionSummary struct {
	ID           string
	CustomerID   string
	Status       cashier.Status
	Total        float64
	Satisfaction float64
	CompletedAt  time.Time
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS transactions (
    id            TEXT PRIMARY KEY,
    customer_id   TEXT NOT NULL,
    status        TEXT NOT NULL,
    total         NUMERIC(12,2) NOT NULL,
    satisfaction  DOUBLE PRECISION NOT NULL,
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ,
    detail        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS escalations (
    customer_id    TEXT NOT NULL,
    transaction_id TEXT,
    reason         TEXT NOT NULL,
    score          DOUBLE PRECISION NOT NULL,
    escalated_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS restock_orders (
    id           TEXT PRIMARY KEY,
    product_id   TEXT NOT NULL,
    quantity     INTEGER NOT NULL,
    total_cost   NUMERIC(12,2) NOT NULL,
    urgency      TEXT NOT NULL,
    status       TEXT NOT NULL,
    ordered_at   TIMESTAMPTZ NOT NULL,
    delivered_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS recommendations (
    decision_id        TEXT PRIMARY KEY,
    type               TEXT NOT NULL,
    overall_confidence DOUBLE PRECISION NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    detail             JSONB NOT NULL
);`

const sqlUpsertOrder = `
        INSERT INTO restock_orders (id, product_id, quantity, total_cost, urgency, status, ordered_at, delivered_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            delivered_at = EXCLUDED.delivered_at;
    `

const sqlUpsertRecommendation = `
        INSERT INTO recommendations (decision_id, type, overall_confidence, created_at, detail)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (decision_id) DO UPDATE SET
            overall_confidence = EXCLUDED.overall_confidence,
            detail = EXCLUDED.detail;
    `

var (
	transactionColumns = []string{"id", "customer_id", "status", "total", "satisfaction", "started_at", "completed_at", "detail"}
	escalationColumns  = []string{"customer_id", "transaction_id", "reason", "score", "escalated_at"}
)

// Store writes archive batches.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Migrate creates the archive tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	return nil
}

// PersistBatch writes every record in b inside one transaction.
func (s *Store) PersistBatch(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if len(b.Transactions) > 0 {
		if err := s.copyTransactions(ctx, tx, b.Transactions); err != nil {
			return err
		}
	}
	if len(b.Escalations) > 0 {
		if err := s.copyEscalations(ctx, tx, b.Escalations); err != nil {
			return err
		}
	}
	if len(b.Orders) > 0 || len(b.Recommendations) > 0 {
		if err := s.upsert(ctx, tx, b.Orders, b.Recommendations); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) copyTransactions(ctx context.Context, tx pgx.Tx, txs []cashier.Transaction) error {
	rows := make([][]interface{}, len(txs))
	for i := range txs {
		t := &txs[i]
		detail, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode transaction %s: %w", t.ID, err)
		}
		rows[i] = []interface{}{
			t.ID, t.CustomerID, string(t.Status), t.Total, t.Satisfaction,
			nullableTime(t.StartedAt), nullableTime(t.CompletedAt), detail,
		}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, transactionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy transactions: %w", err)
	}
	if int(n) != len(txs) {
		return fmt.Errorf("mismatch in copied transactions count: expected %d, got %d", len(txs), n)
	}
	return nil
}

func (s *Store) copyEscalations(ctx context.Context, tx pgx.Tx, notices []cashier.EscalationNotice) error {
	rows := make([][]interface{}, len(notices))
	for i, e := range notices {
		var txID interface{}
		if e.TransactionID != "" {
			txID = e.TransactionID
		}
		rows[i] = []interface{}{e.CustomerID, txID, e.Reason, e.Score, e.At.UTC()}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"escalations"}, escalationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy escalations: %w", err)
	}
	if int(n) != len(notices) {
		return fmt.Errorf("mismatch in copied escalations count: expected %d, got %d", len(notices), n)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, tx pgx.Tx, orders []inventory.Order, recs []advisor.RecommendationSet) error {
	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(sqlUpsertOrder,
			o.ID, o.ProductID, o.Quantity, o.TotalCost, string(o.Urgency), string(o.Status),
			o.OrderDate.UTC(), nullableTime(o.DeliveredAt))
	}
	for i := range recs {
		r := &recs[i]
		detail, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode recommendation %s: %w", r.DecisionID, err)
		}
		batch.Queue(sqlUpsertRecommendation, r.DecisionID, string(r.Type), r.OverallConfidence, r.CreatedAt.UTC(), detail)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := 0; i < len(orders)+len(recs); i++ {
		if _, err := br.Exec(); err != nil {
			if i < len(orders) {
				return fmt.Errorf("failed to upsert restock order %s: %w", orders[i].ID, err)
			}
			return fmt.Errorf("failed to upsert recommendation %s: %w", recs[i-len(orders)].DecisionID, err)
		}
	}
	return nil
}

// RecentTransactions returns the latest archived transactions, newest first.
func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]TransactionSummary, error) {
	query := `
        SELECT id, customer_id, status, total, satisfaction, completed_at
        FROM transactions
        ORDER BY completed_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionSummary
	for rows.Next() {
		var t TransactionSummary
		var status string
		if err := rows.Scan(&t.ID, &t.CustomerID, &status, &t.Total, &t.Satisfaction, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		t.Status = cashier.Status(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
