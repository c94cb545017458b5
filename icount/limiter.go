package icount

import (
	"context"
	"sync"
	"time"
)

// slidingWindow gates outbound requests to at most max per rolling window.
// It computes how long a caller must wait instead of dropping the request.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{max: max, window: window, now: time.Now}
}

// reserve admits the call immediately (returning 0) or reports how long
// until the oldest in-window request ages out.
func (w *slidingWindow) reserve() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) < w.max {
		w.stamps = append(w.stamps, now)
		return 0
	}
	return w.stamps[0].Add(w.window).Sub(now)
}

// wait blocks until a slot opens or the context ends.
func (w *slidingWindow) wait(ctx context.Context) error {
	for {
		d := w.reserve()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
