package scheduling

import (
	"slices"
	"sort"
	"time"
)

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps is false for intervals that only touch at an endpoint.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Widen(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// MergeIntervals returns the sorted union of in with overlapping members
// collapsed. Empty intervals are dropped. The input is not modified.
func MergeIntervals(in []Interval) []Interval {
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	slices.SortFunc(sorted, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	out := sorted[:0]
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Start.Before(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// overlapsAny expects busy to be the output of MergeIntervals.
func overlapsAny(busy []Interval, c Interval) bool {
	i := sort.Search(len(busy), func(i int) bool {
		return busy[i].End.After(c.Start)
	})
	return i < len(busy) && busy[i].Start.Before(c.End)
}

func widenAll(busy []Interval, before, after time.Duration) []Interval {
	if before == 0 && after == 0 {
		return busy
	}
	out := make([]Interval, len(busy))
	for i, iv := range busy {
		out[i] = iv.Widen(before, after)
	}
	return MergeIntervals(out)
}
