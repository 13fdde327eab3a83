package world

import (
	"math/rand"
	"time"

	"github.com/xkilldash9x/shopkeep/internal/clock"
)

// demoCatalog is the starter store used by the CLI.
var demoCatalog = []Product{
	{ID: "apples", Name: "Apples (1kg)", Category: "produce", Price: 3.49, Cost: 1.80, Stock: 40, MaxStock: 80, LeadTimeDays: 1, Supplier: "Green Valley Farms"},
	{ID: "bread", Name: "Sourdough Loaf", Category: "bakery", Price: 4.25, Cost: 1.90, Stock: 25, MaxStock: 50, LeadTimeDays: 1, Supplier: "Corner Bakery"},
	{ID: "milk", Name: "Whole Milk (1L)", Category: "dairy", Price: 1.99, Cost: 0.95, Stock: 12, MaxStock: 60, LeadTimeDays: 2, Supplier: "Hillside Dairy"},
	{ID: "coffee", Name: "Ground Coffee", Category: "pantry", Price: 8.99, Cost: 5.00, Stock: 30, MaxStock: 50, LeadTimeDays: 3, Supplier: "Roastworks"},
	{ID: "sunscreen", Name: "Sunscreen SPF30", Category: "seasonal", Price: 11.50, Cost: 6.20, Stock: 6, MaxStock: 40, LeadTimeDays: 5, Supplier: "Coastline Supply"},
	{ID: "batteries", Name: "AA Batteries (8)", Category: "household", Price: 7.99, Cost: 4.10, Stock: 18, MaxStock: 30, LeadTimeDays: 4, Supplier: "Volt Distribution"},
}

var demoStaff = []StaffMember{
	{ID: "s-1", Name: "Ada", Role: "manager", Workload: 0.7},
	{ID: "s-2", Name: "Rui", Role: "clerk", Workload: 0.8},
	{ID: "s-3", Name: "Noor", Role: "stocker", Workload: 0.6},
}

// NewDemoState builds a small, fully stocked store with a month of sales history so
// that forecasting has something to chew on from the first cycle. The history is
// deterministic for a given seed.
func NewDemoState(clk clock.Clock, seed int64) *State {
	s := NewState(clk, 5000)
	for _, p := range demoCatalog {
		s.AddProduct(p)
	}
	for _, m := range demoStaff {
		s.AddStaff(m)
	}

	rng := rand.New(rand.NewSource(seed))
	now := s.clk.Now()
	for day := 30; day >= 1; day-- {
		at := now.Add(-time.Duration(day)*24*time.Hour + 12*time.Hour)
		for _, p := range demoCatalog {
			qty := 1 + rng.Intn(6)
			s.RecordSaleAt(p.ID, qty, float64(qty)*p.Price, at)
		}
	}
	return s
}
