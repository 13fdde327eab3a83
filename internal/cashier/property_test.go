package cashier

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/xkilldash9x/shopkeep/internal/config"
)

// TestProcessingNeverExceedsLimit drives random arrival bursts through the pipeline.
// Property: Processing() <= MaxConcurrent at every step, and everything drains.
func TestProcessingNeverExceedsLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("processing count stays within the concurrency limit", prop.ForAll(
		func(limit int, bursts []int) bool {
			h := newHarness(t, func(cfg *config.CashierConfig) {
				cfg.MaxConcurrent = limit
			})
			ctx := context.Background()
			h.pipeline.SetEnabled(ctx, true)

			submitted := 0
			for _, burst := range bursts {
				for i := 0; i < burst; i++ {
					if _, notice := h.pipeline.Submit(ctx, shopper(fmt.Sprintf("c-%d", submitted))); notice == nil {
						submitted++
					}
				}
				for step := 0; step < 20; step++ {
					if _, err := h.sched.Advance(500 * time.Millisecond); err != nil {
						return false
					}
					if h.pipeline.Processing() > limit {
						return false
					}
				}
			}
			for step := 0; step < 2000 && h.pipeline.Processing()+h.pipeline.QueueLength() > 0; step++ {
				if _, err := h.sched.Advance(time.Second); err != nil {
					return false
				}
				if h.pipeline.Processing() > limit {
					return false
				}
			}

			m := h.pipeline.Metrics()
			return h.pipeline.PeakProcessing() <= limit && m.Completed+m.Failed == submitted
		},
		gen.IntRange(1, 5),
		gen.SliceOfN(4, gen.IntRange(0, 12)),
	))

	properties.TestingRun(t)
}
