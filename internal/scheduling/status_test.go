package scheduling

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusConfirmed, true},
		{StatusScheduled, StatusCheckedIn, true},
		{StatusConfirmed, StatusCheckedIn, true},
		{StatusCheckedIn, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusInProgress, StatusNoShow, true},
		{StatusConfirmed, StatusNoShow, true},

		{StatusCompleted, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusConfirmed, false},
		{StatusCheckedIn, StatusConfirmed, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusScheduled, Status("rescheduled"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestStatus_Occupies(t *testing.T) {
	for _, s := range []Status{StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress, StatusCompleted} {
		if !s.Occupies() {
			t.Errorf("%s should hold its slot", s)
		}
	}
	for _, s := range []Status{StatusCancelled, StatusNoShow} {
		if s.Occupies() {
			t.Errorf("%s should free its slot", s)
		}
	}
}
