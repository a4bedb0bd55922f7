package loader

import (
	"context"
	"time"
)

// Watch polls the input directory on a fixed interval, running one batch per
// tick. A pass runs immediately on entry. The loop exits on ctx
// cancellation, after the in-flight pass completes; batches are never
// interrupted mid-file.
//
// Only one Watch may run per database: batch passes must not overlap, and
// nothing here enforces cross-process exclusion.
func (l *Loader) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	run := func() {
		if _, err := l.ProcessDirectory(ctx); err != nil {
			l.log.WithError(err).Error("batch pass failed")
		}
	}

	run()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			run()
		}
	}
}
