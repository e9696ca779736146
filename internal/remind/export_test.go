package remind

import "time"

// SetNow overrides the scheduler clock for tests.
func SetNow(s *Scheduler, now func() time.Time) {
	s.now = now
}
