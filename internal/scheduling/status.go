package scheduling

// Position of each non-terminal-exit status along the visit.
var statusOrder = map[Status]int{
	StatusScheduled:  0,
	StatusConfirmed:  1,
	StatusCheckedIn:  2,
	StatusInProgress: 3,
	StatusCompleted:  4,
}

func (s Status) Valid() bool {
	switch s {
	case StatusCancelled, StatusNoShow:
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Occupies reports whether an appointment in this status holds its slot.
func (s Status) Occupies() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// CanTransition allows forward moves along the visit (steps may be skipped)
// and cancellation or no-show from any state before completion.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() || from == to {
		return false
	}
	if to == StatusCancelled || to == StatusNoShow {
		return true
	}
	return statusOrder[to] > statusOrder[from]
}

// Reschedulable reports whether an appointment may still be moved in time.
func (s Status) Reschedulable() bool {
	return s == StatusScheduled || s == StatusConfirmed
}
