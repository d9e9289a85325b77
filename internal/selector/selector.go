// Package selector picks the reference planting day from a cyclic vector of
// mean yields using a centered circular moving average.
package selector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"cyclesdojo/internal/logging"
)

// CandidateDays are the day-of-year planting markers, roughly one per month.
var CandidateDays = [12]int{15, 46, 74, 105, 135, 166, 196, 227, 258, 288, 319, 345}

// Period is the number of candidate days in one cycle.
const Period = len(CandidateDays)

// DefaultHalfWindow gives the 5-point window.
const DefaultHalfWindow = 2

// Sample is the mean yield for one candidate day.
type Sample struct {
	Day   int
	Yield float64
}

// Choice is the winning position of a selection.
type Choice struct {
	Index int
	Day   int
	// Yield is the raw sample yield at Index, not the smoothed value.
	Yield float64
	// Average is the moving average that won.
	Average float64
}

// InvalidInputError is returned for yield vectors of the wrong length.
type InvalidInputError struct {
	Got  int
	Want int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("yield vector has %d samples, want %d", e.Got, e.Want)
}

// MovingAverage returns the mean of yields over the circular window of
// half-width h centered on m.
func MovingAverage(yields []float64, m, h int) float64 {
	idx := Window(m, h, len(yields))
	window := make([]float64, len(idx))
	for i, p := range idx {
		window[i] = yields[p]
	}
	return stat.Mean(window, nil)
}

// Select returns the position whose centered moving average is largest.
// Positions are scanned 0..Period-1 and only a strictly larger average
// replaces the current best, so the first maximum wins.
func Select(samples []Sample, halfWindow int) (Choice, error) {
	if len(samples) != Period {
		return Choice{}, &InvalidInputError{Got: len(samples), Want: Period}
	}
	if halfWindow < 0 || 2*halfWindow+1 > Period {
		return Choice{}, fmt.Errorf("half window %d does not fit a cycle of %d", halfWindow, Period)
	}

	yields := make([]float64, len(samples))
	for i, s := range samples {
		yields[i] = s.Yield
	}

	best := Choice{Index: 0, Average: math.Inf(-1)}
	for m := range yields {
		avg := MovingAverage(yields, m, halfWindow)
		if avg > best.Average {
			best.Index = m
			best.Average = avg
		}
	}
	if math.IsInf(best.Average, -1) {
		// Every window was NaN or -Inf; keep position 0.
		best.Average = MovingAverage(yields, 0, halfWindow)
	}

	best.Day = samples[best.Index].Day
	best.Yield = samples[best.Index].Yield
	logging.SelectorDebug("Selected index %d (day %d, yield %g, average %g)", best.Index, best.Day, best.Yield, best.Average)
	return best, nil
}

// Vector pairs yields with CandidateDays in order.
func Vector(yields []float64) []Sample {
	out := make([]Sample, len(yields))
	for i, y := range yields {
		day := 0
		if i < Period {
			day = CandidateDays[i]
		}
		out[i] = Sample{Day: day, Yield: y}
	}
	return out
}
