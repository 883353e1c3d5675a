package pricefeed

import (
	"fmt"
	"time"
)

// TimeRange represents an inclusive time window at second granularity.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// SplitRange splits a time window into consecutive chunks no longer than
// step. History endpoints cap how much a single request may cover, so long
// backfills are fetched chunk by chunk.
func SplitRange(from, to time.Time, step time.Duration) ([]TimeRange, error) {
	if step < time.Second {
		return nil, fmt.Errorf("step must be at least one second")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("range end must not precede range start")
	}

	ranges := make([]TimeRange, 0)
	start := from
	for !start.After(to) {
		end := start.Add(step)
		if !end.Before(to) {
			end = to
		}
		ranges = append(ranges, TimeRange{From: start, To: end})
		if !end.Before(to) {
			break
		}
		start = end.Add(time.Second)
	}

	return ranges, nil
}
