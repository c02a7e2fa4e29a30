package report

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// ColumnStats is the aggregation result for one numeric column.
type ColumnStats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64

	// Percentiles, nil when the sketch is disabled or empty.
	P50 *float64
	P95 *float64
}

// ColumnAggregate maintains running statistics for one CSV column during a
// single-pass read. It is not safe for concurrent use; report generation
// reads one file on one goroutine.
type ColumnAggregate struct {
	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for percentiles (nil if disabled)
	sketch *ddsketch.DDSketch
}

// NewColumnAggregate creates an aggregate. Percentiles are tracked with the
// given relative accuracy; accuracy <= 0 disables the sketch.
func NewColumnAggregate(accuracy float64) *ColumnAggregate {
	agg := &ColumnAggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}

	if accuracy > 0 {
		sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
		if err == nil {
			agg.sketch = sketch
		}
	}

	return agg
}

// Add adds a value to the aggregate.
func (a *ColumnAggregate) Add(value float64) {
	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *ColumnAggregate) Count() int64 {
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *ColumnAggregate) IsEmpty() bool {
	return a.count == 0
}

// Result returns the aggregation result.
func (a *ColumnAggregate) Result() ColumnStats {
	stats := ColumnStats{
		Count: a.count,
		Sum:   a.sum,
	}

	if a.count > 0 {
		stats.Mean = a.sum / float64(a.count)
		stats.Min = a.min
		stats.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		if p50, err := a.sketch.GetValueAtQuantile(0.50); err == nil {
			stats.P50 = &p50
		}
		if p95, err := a.sketch.GetValueAtQuantile(0.95); err == nil {
			stats.P95 = &p95
		}
	}

	return stats
}
