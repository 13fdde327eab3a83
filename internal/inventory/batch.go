package inventory

import "sort"

// PlanBatch admits candidates most-urgent first while the running cost stays within
// budget. A candidate that would overflow the budget is skipped, not deferred, and a
// cheaper one behind it may still fit. Candidates of equal urgency keep their order.
func PlanBatch(candidates []Candidate, budget float64) (admitted, skipped []Candidate) {
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Urgency.rank() < sorted[j].Urgency.rank()
	})

	var spent float64
	for _, c := range sorted {
		if spent+c.TotalCost > budget {
			skipped = append(skipped, c)
			continue
		}
		spent += c.TotalCost
		admitted = append(admitted, c)
	}
	return admitted, skipped
}

// batchCost sums the cost of candidates.
func batchCost(candidates []Candidate) float64 {
	var total float64
	for _, c := range candidates {
		total += c.TotalCost
	}
	return total
}
