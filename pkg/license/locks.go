package license

import "time"

// Locks is the list of license-lock timestamps stored on a team owner's
// record. Each entry marks the moment a seat was freed by removing a
// recently joined member; the seat stays unusable for LockDuration from
// that moment.
type Locks []time.Time

// Active reports whether a lock recorded at t still blocks a seat at now.
// The boundary is exclusive: a lock recorded exactly LockDuration ago is
// already expired.
func lockActive(t, now time.Time) bool {
	return now.Before(t.Add(LockDuration))
}

// ActiveCount returns the number of locks still blocking seats at now.
func (l Locks) ActiveCount(now time.Time) int {
	n := 0
	for _, t := range l {
		if lockActive(t, now) {
			n++
		}
	}
	return n
}

// Pruned returns a copy of l with expired locks dropped. Called on every
// owner-record write so dead locks never accumulate in the directory.
func (l Locks) Pruned(now time.Time) Locks {
	if len(l) == 0 {
		return nil
	}
	out := make(Locks, 0, len(l))
	for _, t := range l {
		if lockActive(t, now) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
