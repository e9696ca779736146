package watch

import (
	"context"
	"time"
)

// SetNow overrides the detector clock for tests.
func SetNow(d *Detector, now func() time.Time) {
	d.now = now
}

// PollOnce runs one folder listing pass for tests.
func (d *Detector) PollOnce(ctx context.Context) error {
	return d.pollOnce(ctx)
}

// MaintainLease runs one lease tick for tests.
func (d *Detector) MaintainLease(ctx context.Context) {
	d.maintainLease(ctx)
}
