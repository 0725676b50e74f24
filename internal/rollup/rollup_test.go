package rollup

import (
	"testing"

	"rollup-service/internal/model"

	"github.com/stretchr/testify/assert"
)

func comp(progress, planned, actual float64) model.Component {
	return model.Component{
		ProgressPercent: progress,
		PlannedCost:     planned,
		ActualCost:      actual,
	}
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name       string
		components []model.Component
		want       float64
	}{
		{
			name:       "empty",
			components: nil,
			want:       0,
		},
		{
			name: "zero planned cost falls back to weight one",
			components: []model.Component{
				comp(50, 10, 0),
				comp(100, 20, 0),
				comp(0, 0, 0),
			},
			// (10*50 + 20*100 + 1*0) / 31
			want: 80.65,
		},
		{
			name: "two weighted components",
			components: []model.Component{
				comp(40, 100, 0),
				comp(80, 300, 0),
			},
			want: 70,
		},
		{
			name: "single component",
			components: []model.Component{
				comp(33.333, 50, 0),
			},
			want: 33.33,
		},
		{
			name: "all zero weights behave as unweighted average",
			components: []model.Component{
				comp(20, 0, 0),
				comp(80, 0, 0),
			},
			want: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeProgress(tt.components), 0.0001)
		})
	}
}

func TestComputeActualCost(t *testing.T) {
	tests := []struct {
		name       string
		components []model.Component
		want       float64
	}{
		{
			name:       "empty",
			components: nil,
			want:       0,
		},
		{
			name: "sums root costs",
			components: []model.Component{
				comp(0, 0, 4000),
				comp(0, 0, 24000),
			},
			want: 28000,
		},
		{
			name: "rounds to two decimals",
			components: []model.Component{
				comp(0, 0, 10.005),
				comp(0, 0, 0.001),
			},
			want: 10.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeActualCost(tt.components), 0.0001)
		})
	}
}
