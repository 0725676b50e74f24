package rollup

import (
	"math"

	"rollup-service/internal/model"
)

// minWeight keeps zero-cost components in the weighted average and guards the
// divisor against zero.
const minWeight = 1.0

// ComputeProgress returns the planned-cost-weighted average of the given
// components' progress, rounded to 2 decimal places. An empty slice yields 0.
func ComputeProgress(components []model.Component) float64 {
	if len(components) == 0 {
		return 0
	}

	var weighted, total float64
	for _, c := range components {
		w := c.PlannedCost
		if w <= 0 {
			w = minWeight
		}
		weighted += w * c.ProgressPercent
		total += w
	}

	return round2(weighted / total)
}

// ComputeActualCost returns the sum of the given components' actual cost.
// Callers pass root components only; child cost is assumed to already roll
// into its parent elsewhere.
func ComputeActualCost(components []model.Component) float64 {
	var sum float64
	for _, c := range components {
		sum += c.ActualCost
	}
	return round2(sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
