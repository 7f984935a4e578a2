package store

import (
	"context"
	"time"

	"gitea.jw6.us/james/gigboard/internal/metrics"
)

// observeDB starts a latency measurement; call the returned func when the operation completes.
func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}
