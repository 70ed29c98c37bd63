package scheduling

import (
	"iter"
	"time"
)

type SlotParams struct {
	Window      Interval
	Busy        []Interval // merged, already widened by buffers
	Duration    time.Duration
	Granularity time.Duration // defaults to Duration
	Now         time.Time
}

// GenerateSlots walks the working window in Granularity steps and yields
// every candidate that fits the window, misses every busy interval and
// does not start before Now. Each range over the result walks again.
func GenerateSlots(p SlotParams) iter.Seq[Interval] {
	step := p.Granularity
	if step <= 0 {
		step = p.Duration
	}

	return func(yield func(Interval) bool) {
		if p.Duration <= 0 || p.Window.Empty() {
			return
		}
		for t := p.Window.Start; !t.Add(p.Duration).After(p.Window.End); t = t.Add(step) {
			if t.Before(p.Now) {
				continue
			}
			c := Interval{Start: t, End: t.Add(p.Duration)}
			if overlapsAny(p.Busy, c) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}
