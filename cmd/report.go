// File: cmd/report.go
package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/shopkeep/internal/advisor"
	"github.com/xkilldash9x/shopkeep/internal/cashier"
	"github.com/xkilldash9x/shopkeep/internal/coordinator"
	"github.com/xkilldash9x/shopkeep/internal/service"
	"github.com/xkilldash9x/shopkeep/internal/simulation"
	"github.com/xkilldash9x/shopkeep/internal/world"
)

// report is the end-of-run summary printed by `run` and `simulate`.
type report struct {
	Elapsed    string             `json:"elapsed"`
	Traffic    *simulation.Counts `json:"traffic,omitempty"`
	Automation coordinator.Status `json:"automation"`
	Cashier    cashier.Metrics    `json:"cashier"`
	Inventory  inventorySummary   `json:"inventory"`
	Advisor    advisorSummary     `json:"advisor"`
	Finances   world.Finances     `json:"finances"`
	Archive    *archiveSummary    `json:"archive,omitempty"`
}

type inventorySummary struct {
	OrdersPlaced  int `json:"orders_placed"`
	PendingOrders int `json:"pending_orders"`
}

type advisorSummary struct {
	advisor.Parameters
	Decisions int `json:"decisions"`
}

type archiveSummary struct {
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
}

func newReport(c *service.Components, elapsed time.Duration) report {
	r := report{
		Elapsed:    elapsed.Round(time.Second).String(),
		Automation: c.Coordinator.Status(),
		Cashier:    c.Cashier.RefreshMetrics(),
		Inventory: inventorySummary{
			OrdersPlaced:  len(c.Inventory.History()),
			PendingOrders: len(c.Inventory.Pending()),
		},
		Advisor: advisorSummary{
			Parameters: c.Advisor.Parameters(),
			Decisions:  len(c.Advisor.History()),
		},
		Finances: c.State.Finances(),
	}
	if c.Traffic != nil {
		counts := c.Traffic.Counts()
		r.Traffic = &counts
	}
	if c.Archiver != nil {
		r.Archive = &archiveSummary{Written: c.Archiver.Written(), Dropped: c.Archiver.Dropped()}
	}
	return r
}

func (r report) write(w io.Writer, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Elapsed:        %s\n", r.Elapsed)
	if r.Traffic != nil {
		fmt.Fprintf(&b, "Traffic:        %d customers, %d openings, %d decisions\n", r.Traffic.Customers, r.Traffic.Openings, r.Traffic.Decisions)
	}
	fmt.Fprintf(&b, "Active modules: %s\n", joinNames(r.Automation.Active))
	fmt.Fprintf(&b, "Efficiency:     %.2f  ROI: %.2f\n", r.Automation.Metrics.Efficiency, r.Automation.Metrics.ROI)
	fmt.Fprintf(&b, "Checkout:       %d completed, %d failed, %d escalated, avg %s\n",
		r.Cashier.Completed, r.Cashier.Failed, r.Cashier.Escalated, r.Cashier.AverageDuration.Round(time.Second))
	fmt.Fprintf(&b, "Inventory:      %d orders placed, %d pending\n", r.Inventory.OrdersPlaced, r.Inventory.PendingOrders)
	fmt.Fprintf(&b, "Advisor:        %d decisions, confidence %.2f, creativity %.2f\n",
		r.Advisor.Decisions, r.Advisor.Confidence, r.Advisor.Creativity)
	fmt.Fprintf(&b, "Cash:           %.2f (revenue %.2f, expenses %.2f)\n", r.Finances.Cash, r.Finances.Revenue, r.Finances.Expenses)
	if r.Archive != nil {
		fmt.Fprintf(&b, "Archived:       %d records (%d dropped)\n", r.Archive.Written, r.Archive.Dropped)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinNames[T ~string](names []T) string {
	if len(names) == 0 {
		return "none"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
