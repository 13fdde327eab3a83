package inventory

import (
	"errors"
	"time"
)

var (
	// ErrBudgetExceeded marks an order skipped because the cycle budget is spent.
	ErrBudgetExceeded = errors.New("restock budget exceeded")
	// ErrOrderPending is returned when a product already has an outstanding order.
	ErrOrderPending = errors.New("restock order already pending")
)

// Trend is the direction of recent demand.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// Urgency ranks competing restock candidates.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// rank orders urgencies for sorting, most urgent first.
func (u Urgency) rank() int {
	switch u {
	case UrgencyCritical:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	default:
		return 3
	}
}

// Record is the engine's cached view of one product's stock position.
type Record struct {
	ProductID    string  `json:"product_id"`
	Category     string  `json:"category"`
	CurrentStock int     `json:"current_stock"`
	MaxStock     int     `json:"max_stock"`
	ReorderPoint int     `json:"reorder_point"`
	Cost         float64 `json:"cost"`
	LeadTimeDays int     `json:"lead_time_days"`
	Supplier     string  `json:"supplier"`
}

// Forecast is the latest demand estimate for a product. A new forecast replaces the
// previous one outright.
type Forecast struct {
	ProductID   string    `json:"product_id"`
	DailyDemand float64   `json:"daily_demand"`
	Trend       Trend     `json:"trend"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"last_updated"`
}

// OrderStatus tracks a restock order to delivery.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderDelivered OrderStatus = "delivered"
)

// Order is a restock order placed with a supplier.
type Order struct {
	ID               string      `json:"id"`
	ProductID        string      `json:"product_id"`
	Supplier         string      `json:"supplier"`
	Quantity         int         `json:"quantity"`
	UnitCost         float64     `json:"unit_cost"`
	TotalCost        float64     `json:"total_cost"`
	OrderDate        time.Time   `json:"order_date"`
	ExpectedDelivery time.Time   `json:"expected_delivery"`
	Urgency          Urgency     `json:"urgency"`
	Status           OrderStatus `json:"status"`
	DeliveredAt      time.Time   `json:"delivered_at,omitempty"`
}

// Candidate is a proposed order awaiting budget admission.
type Candidate struct {
	Record    Record  `json:"record"`
	Quantity  int     `json:"quantity"`
	Urgency   Urgency `json:"urgency"`
	TotalCost float64 `json:"total_cost"`
}

// CheckReport is the payload of inventory:statusUpdate.
type CheckReport struct {
	CheckedAt     time.Time `json:"checked_at"`
	Products      int       `json:"products"`
	NeedsRestock  []string  `json:"needs_restock"`
	Ordered       []Order   `json:"ordered"`
	OverBudget    []string  `json:"over_budget"`
	PendingOrders int       `json:"pending_orders"`
	BudgetUsed    float64   `json:"budget_used"`
}

// DailyReport is the payload of inventory:dailyAnalysis.
type DailyReport struct {
	Date          time.Time `json:"date"`
	LowStock      int       `json:"low_stock"`
	Overstock     int       `json:"overstock"`
	StockValue    float64   `json:"stock_value"`
	PendingOrders int       `json:"pending_orders"`
	Rising        []string  `json:"rising"`
}

// LowStockAlert is the payload of inventory:lowStock.
type LowStockAlert struct {
	ProductID    string `json:"product_id"`
	CurrentStock int    `json:"current_stock"`
	ReorderPoint int    `json:"reorder_point"`
}
