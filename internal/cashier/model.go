package cashier

import (
	"errors"
	"time"
)

var (
	// ErrPaymentFailure terminates a transaction and escalates it.
	ErrPaymentFailure = errors.New("payment failed")
	// ErrScanAnomaly is a misread at the scanner. It costs a rescan, nothing more.
	ErrScanAnomaly = errors.New("scan anomaly")
)

// Status is a transaction's position in the pipeline state machine.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentCash   PaymentMethod = "cash"
	PaymentMobile PaymentMethod = "mobile"
)

var paymentMethods = []PaymentMethod{PaymentCard, PaymentCash, PaymentMobile}

// Item is one cart line.
type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Customer is the payload of a customer:arrived event.
type Customer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Mood           string `json:"mood"`
	HasComplaint   bool   `json:"has_complaint"`
	SpecialRequest bool   `json:"special_request"`
	PaymentIssue   bool   `json:"payment_issue"`
	VIP            bool   `json:"vip"`
	Cart           []Item `json:"cart"`
}

// CartSize is the total number of units in the cart.
func (c Customer) CartSize() int {
	n := 0
	for _, it := range c.Cart {
		n += it.Quantity
	}
	return n
}

// ConversationLine is one utterance in a transaction.
type ConversationLine struct {
	At      time.Time `json:"at"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
}

// Transaction is a customer's trip through the automated till.
type Transaction struct {
	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	Items           []Item             `json:"items"`
	Status          Status             `json:"status"`
	ConversationLog []ConversationLine `json:"conversation_log"`
	Subtotal        float64            `json:"subtotal"`
	Tax             float64            `json:"tax"`
	Total           float64            `json:"total"`
	PaymentMethod   PaymentMethod      `json:"payment_method,omitempty"`
	QueuedAt        time.Time          `json:"queued_at"`
	StartedAt       time.Time          `json:"started_at,omitempty"`
	CompletedAt     time.Time          `json:"completed_at,omitempty"`
	Satisfaction    float64            `json:"satisfaction"`
	Upsold          bool               `json:"upsold"`
	ScanErrors      int                `json:"scan_errors"`
	FailureReason   string             `json:"failure_reason,omitempty"`
}

// Duration is the processing time of a terminal transaction.
func (t *Transaction) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

func (t *Transaction) clone() Transaction {
	cp := *t
	cp.Items = append([]Item(nil), t.Items...)
	cp.ConversationLog = append([]ConversationLine(nil), t.ConversationLog...)
	return cp
}

// EscalationNotice hands a customer or a failed transaction to a human.
type EscalationNotice struct {
	CustomerID    string    `json:"customer_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason"`
	Score         float64   `json:"score"`
	Factors       []string  `json:"factors,omitempty"`
	At            time.Time `json:"at"`
}

// ConversationEvent is published for every line the till speaks or hears.
type ConversationEvent struct {
	TransactionID string `json:"transaction_id"`
	Speaker       string `json:"speaker"`
	Text          string `json:"text"`
}

// Metrics is the rolling performance summary of the pipeline.
type Metrics struct {
	AverageDuration  time.Duration `json:"average_duration"`
	SatisfactionRate float64       `json:"satisfaction_rate"`
	ErrorRate        float64       `json:"error_rate"`
	Completed        int           `json:"completed"`
	Failed           int           `json:"failed"`
	Escalated        int           `json:"escalated"`
	Queued           int           `json:"queued"`
	Processing       int           `json:"processing"`
}
