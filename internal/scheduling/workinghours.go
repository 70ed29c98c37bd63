package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type DayHours struct {
	Start     string `json:"start"` // HH:MM, 24h
	End       string `json:"end"`
	IsWorking bool   `json:"isWorking"`
}

// WorkingHours maps a lower-case weekday name ("monday") to that day's hours.
type WorkingHours map[string]DayHours

var weekdayKeys = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func WeekdayKey(d time.Weekday) string {
	return weekdayKeys[d]
}

// ParseClock parses a 24h "HH:MM" string into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// Validate checks that every working day has a parsable start before its end.
func (wh WorkingHours) Validate() error {
	var verr ValidationError
	for day, h := range wh {
		if !isWeekdayKey(day) {
			verr.Add("workingHours."+day, "unknown weekday")
			continue
		}
		if !h.IsWorking {
			continue
		}
		start, err := ParseClock(h.Start)
		if err != nil {
			verr.Add("workingHours."+day+".start", err.Error())
			continue
		}
		end, err := ParseClock(h.End)
		if err != nil {
			verr.Add("workingHours."+day+".end", err.Error())
			continue
		}
		if start >= end {
			verr.Add("workingHours."+day, "start must be before end")
		}
	}
	return verr.Err()
}

func isWeekdayKey(s string) bool {
	for _, k := range weekdayKeys {
		if k == s {
			return true
		}
	}
	return false
}

// WorkingWindow returns the provider's working interval on date d, read in
// the provider's time zone. A missing, malformed or non-working day entry,
// or an unknown zone, yields ok == false.
func WorkingWindow(p Provider, d Date) (Interval, bool) {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return Interval{}, false
	}

	day, ok := p.WorkingHours[WeekdayKey(d.Weekday())]
	if !ok || !day.IsWorking {
		return Interval{}, false
	}

	start, err := ParseClock(day.Start)
	if err != nil {
		return Interval{}, false
	}
	end, err := ParseClock(day.End)
	if err != nil || start >= end {
		return Interval{}, false
	}

	return Interval{
		Start: d.At(start/60, start%60, loc),
		End:   d.At(end/60, end%60, loc),
	}, true
}

// IsWorkingDuring reports whether iv lies entirely inside one working window.
func IsWorkingDuring(p Provider, iv Interval) bool {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return false
	}
	window, ok := WorkingWindow(p, DateOf(iv.Start.In(loc)))
	if !ok {
		return false
	}
	return window.Contains(iv)
}

// TimeRange is a time-of-day preference such as 08:00-12:00, half-open.
type TimeRange struct {
	From int // minutes after midnight
	To   int
}

func ParseTimeRange(s string) (TimeRange, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("invalid time range %q: expected HH:MM-HH:MM", s)
	}
	from, err := ParseClock(a)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := ParseClock(b)
	if err != nil {
		return TimeRange{}, err
	}
	if from >= to {
		return TimeRange{}, fmt.Errorf("invalid time range %q: start must be before end", s)
	}
	return TimeRange{From: from, To: to}, nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.From/60, r.From%60, r.To/60, r.To%60)
}

// Includes reports whether the wall-clock time of t falls in the range.
func (r TimeRange) Includes(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= r.From && m < r.To
}
