// Package world holds the shared, mutable store state that every automation module
// reads and writes: finances, product stock, staff and the sales ledger.
//
// The state is not owned by the automation engine. It is supplied at start-up and
// mutated only by the module that owns an operation: the cashier credits sales and
// draws down stock, the replenishment engine receives deliveries and pays suppliers.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/shopkeep/internal/clock"
)

// ErrUnknownProduct is returned for operations on a product that is not stocked.
var ErrUnknownProduct = errors.New("unknown product")

// Product is a stocked item.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	Cost         float64 `json:"cost"`
	Stock        int     `json:"stock"`
	MaxStock     int     `json:"max_stock"`
	LeadTimeDays int     `json:"lead_time_days"`
	Supplier     string  `json:"supplier"`
}

// StaffMember is an employee and their current workload in [0,1].
type StaffMember struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	Workload float64 `json:"workload"`
}

// Finances is a snapshot of the store's books.
type Finances struct {
	Cash     float64 `json:"cash"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
}

// Sale is one line of the sales ledger.
type Sale struct {
	ProductID string
	Quantity  int
	Revenue   float64
	At        time.Time
}

// LedgerEntry is a dated cash movement. Positive amounts are income.
type LedgerEntry struct {
	Amount float64
	Reason string
	At     time.Time
}

const maxSatisfactionSamples = 200

const (
	// DefaultRetention is how long sales and ledger entries are kept.
	DefaultRetention = 60 * 24 * time.Hour
	// minRetention covers the two trailing weeks of revenue the advisor compares.
	minRetention = 14 * 24 * time.Hour
)

// State is the shared world record. All methods are safe for concurrent use.
type State struct {
	clk clock.Clock

	mu           sync.RWMutex
	retention    time.Duration
	finances     Finances
	products     map[string]*Product
	sales        []Sale
	ledger       []LedgerEntry
	staff        []StaffMember
	satisfaction []float64
}

// NewState creates an empty world with the given opening cash balance.
func NewState(clk clock.Clock, openingCash float64) *State {
	if clk == nil {
		clk = clock.Real{}
	}
	return &State{
		clk:       clk,
		retention: DefaultRetention,
		finances:  Finances{Cash: openingCash},
		products:  make(map[string]*Product),
	}
}

// SetRetention changes how far back sales and ledger entries are kept. Values below
// two weeks are raised to two weeks. Existing history is pruned on the next append.
func (s *State) SetRetention(d time.Duration) {
	if d < minRetention {
		d = minRetention
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = d
}

// AddProduct stocks a new product, or replaces an existing one with the same ID.
func (s *State) AddProduct(p Product) {
	if p.Stock < 0 {
		p.Stock = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

// Product returns a copy of the product with the given ID.
func (s *State) Product(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// Products returns copies of every product, ordered by ID.
func (s *State) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stock returns the current quantity on hand for id.
func (s *State) Stock(id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}
	return p.Stock, nil
}

// AdjustStock changes the quantity on hand by delta. Stock never goes below zero;
// the applied change is returned.
func (s *State) AdjustStock(id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}
	next := p.Stock + delta
	if next < 0 {
		next = 0
	}
	applied := next - p.Stock
	p.Stock = next
	return applied, nil
}

// Finances returns a snapshot of the books.
func (s *State) Finances() Finances {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finances
}

// Cash returns the current cash balance.
func (s *State) Cash() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finances.Cash
}

// Credit records income: cash and revenue both grow by amount.
func (s *State) Credit(amount float64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finances.Cash += amount
	s.finances.Revenue += amount
	s.appendLedgerLocked(LedgerEntry{Amount: amount, Reason: reason, At: s.clk.Now()})
}

// Debit records an expense. Cash may go negative; that is a signal for the advisor,
// not an error.
func (s *State) Debit(amount float64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finances.Cash -= amount
	s.finances.Expenses += amount
	s.appendLedgerLocked(LedgerEntry{Amount: -amount, Reason: reason, At: s.clk.Now()})
}

func (s *State) appendLedgerLocked(e LedgerEntry) {
	cutoff := e.At.Add(-s.retention)
	if len(s.ledger) > 0 && s.ledger[0].At.Before(cutoff) {
		kept := s.ledger[:0]
		for _, old := range s.ledger {
			if !old.At.Before(cutoff) {
				kept = append(kept, old)
			}
		}
		s.ledger = kept
	}
	s.ledger = append(s.ledger, e)
}

// RecordSale appends to the sales ledger used for demand forecasting.
func (s *State) RecordSale(productID string, quantity int, revenue float64) {
	s.RecordSaleAt(productID, quantity, revenue, s.clk.Now())
}

// RecordSaleAt appends a sale with an explicit timestamp. Used to seed history.
// Sales older than the retention window are dropped.
func (s *State) RecordSaleAt(productID string, quantity int, revenue float64, at time.Time) {
	if quantity <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clk.Now().Add(-s.retention)
	if at.Before(cutoff) {
		return
	}
	if len(s.sales) > 0 && s.sales[0].At.Before(cutoff) {
		kept := s.sales[:0]
		for _, old := range s.sales {
			if !old.At.Before(cutoff) {
				kept = append(kept, old)
			}
		}
		s.sales = kept
	}
	s.sales = append(s.sales, Sale{ProductID: productID, Quantity: quantity, Revenue: revenue, At: at})
}

// DailySales returns units sold of productID for each of the trailing days ending at
// now. Index 0 is the oldest day. Days are counted back in 24h windows from now.
func (s *State) DailySales(productID string, days int, now time.Time) []float64 {
	if days <= 0 {
		return nil
	}
	out := make([]float64, days)
	start := now.Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sale := range s.sales {
		if sale.ProductID != productID || !sale.At.After(start) || sale.At.After(now) {
			continue
		}
		idx := int(sale.At.Sub(start) / (24 * time.Hour))
		if idx >= days {
			idx = days - 1
		}
		out[idx] += float64(sale.Quantity)
	}
	return out
}

// RevenueBetween sums sales revenue in (from, to].
func (s *State) RevenueBetween(from, to time.Time) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, sale := range s.sales {
		if sale.At.After(from) && !sale.At.After(to) {
			total += sale.Revenue
		}
	}
	return total
}

// NetCashFlow sums ledger movements over the trailing window ending now.
func (s *State) NetCashFlow(window time.Duration) float64 {
	now := s.clk.Now()
	from := now.Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var net float64
	for _, e := range s.ledger {
		if e.At.After(from) && !e.At.After(now) {
			net += e.Amount
		}
	}
	return net
}

// AddStaff hires a staff member.
func (s *State) AddStaff(m StaffMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff = append(s.staff, m)
}

// Staff returns a copy of the roster.
func (s *State) Staff() []StaffMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StaffMember, len(s.staff))
	copy(out, s.staff)
	return out
}

// SetWorkload updates a staff member's workload, clamped to [0,1].
func (s *State) SetWorkload(id string, workload float64) bool {
	if workload < 0 {
		workload = 0
	}
	if workload > 1 {
		workload = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.staff {
		if s.staff[i].ID == id {
			s.staff[i].Workload = workload
			return true
		}
	}
	return false
}

// RecordSatisfaction stores a customer satisfaction sample in [0,1].
func (s *State) RecordSatisfaction(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.satisfaction = append(s.satisfaction, v)
	if len(s.satisfaction) > maxSatisfactionSamples {
		s.satisfaction = s.satisfaction[len(s.satisfaction)-maxSatisfactionSamples:]
	}
}

// AverageSatisfaction returns the mean of the most recent samples and whether any exist.
func (s *State) AverageSatisfaction(samples int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.satisfaction)
	if n == 0 {
		return 0, false
	}
	if samples <= 0 || samples > n {
		samples = n
	}
	var sum float64
	for _, v := range s.satisfaction[n-samples:] {
		sum += v
	}
	return sum / float64(samples), true
}
