// Package aggregate turns the twelve candidate-day result tables of one
// (country, crop) into a reference planting day per spatial unit.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/selector"
	"cyclesdojo/internal/spatial"
)

// DefaultMetric is the column averaged per candidate day.
const DefaultMetric = "grain_yield"

// DayFile is the result table of one candidate planting day.
type DayFile struct {
	Day  int
	Path string
}

// Options configures an Aggregator.
type Options struct {
	HalfWindow int
	// Workers bounds concurrent file loads; <= 0 uses GOMAXPROCS.
	Workers int
	Metric  string
}

// Stats reports how many spatial units survived the day join.
type Stats struct {
	Country    string
	Crop       string
	KeysPerDay map[int]int
	Joined     int
	Dropped    int
	Skipped    int
	FailedDays []int
}

// Aggregator computes reference days. It holds no mutable state and is safe
// for concurrent use.
type Aggregator struct {
	opts Options
}

// New creates an Aggregator, filling defaults.
func New(opts Options) *Aggregator {
	if opts.Metric == "" {
		opts.Metric = DefaultMetric
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Aggregator{opts: opts}
}

// Aggregate loads every candidate-day file concurrently, waits for all of
// them, inner-joins the per-day means on the spatial key and selects the
// reference day for each fully covered unit.
//
// A file that fails to load is reported in the returned error; since the
// join needs all twelve days, no unit of this (country, crop) survives it.
func (a *Aggregator) Aggregate(ctx context.Context, country, crop string, files []DayFile) (Results, Stats, error) {
	timer := logging.StartTimer(logging.CategoryAggregate, fmt.Sprintf("aggregate %s/%s", country, crop))
	defer timer.Stop()

	stats := Stats{Country: country, Crop: crop, KeysPerDay: make(map[int]int)}
	if len(files) != selector.Period {
		return Results{}, stats, &selector.InvalidInputError{Got: len(files), Want: selector.Period}
	}

	ordered := append([]DayFile(nil), files...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Day < ordered[j].Day })

	means := make([]map[spatial.Key]float64, len(ordered))
	errs := make([]error, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, f := range ordered {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := MeanByKey(f.Path, country, a.opts.Metric)
			if err != nil {
				errs[i] = fmt.Errorf("day %d: %w", f.Day, err)
				return nil
			}
			means[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, stats, err
	}

	for i, f := range ordered {
		if errs[i] != nil {
			stats.FailedDays = append(stats.FailedDays, f.Day)
			logging.AggregateWarn("%s/%s: %v", country, crop, errs[i])
			continue
		}
		stats.KeysPerDay[f.Day] = len(means[i])
	}
	if len(stats.FailedDays) > 0 {
		return Results{}, stats, fmt.Errorf("aggregate %s/%s: %w", country, crop, errors.Join(errs...))
	}

	results := a.join(ordered, means, &stats)
	logging.Aggregate("%s/%s: %d units joined, %d dropped by the day join, %d skipped",
		country, crop, stats.Joined, stats.Dropped, stats.Skipped)
	return results, stats, nil
}

func (a *Aggregator) join(days []DayFile, means []map[spatial.Key]float64, stats *Stats) Results {
	seen := make(map[spatial.Key]struct{})
	for _, m := range means {
		for k := range m {
			seen[k] = struct{}{}
		}
	}

	results := make(Results)
	for key := range seen {
		samples := make([]selector.Sample, 0, len(days))
		for i, d := range days {
			y, ok := means[i][key]
			if !ok {
				break
			}
			samples = append(samples, selector.Sample{Day: d.Day, Yield: y})
		}
		if len(samples) != len(days) {
			stats.Dropped++
			continue
		}
		stats.Joined++

		choice, err := selector.Select(samples, a.opts.HalfWindow)
		if err != nil {
			stats.Skipped++
			logging.AggregateWarn("%s: %v", key, err)
			continue
		}
		results[key] = Reference{Day: choice.Day, Yield: choice.Yield}
	}
	return results
}
