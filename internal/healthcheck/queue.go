package healthcheck

import (
	"context"
	"fmt"
)

// QueueObserver is satisfied by *dispatch.Pool.
type QueueObserver interface {
	Depth() int
	Capacity() int
}

// QueueChecker warns when the dispatch queue fills past a threshold and
// errors when it is full.
type QueueChecker struct {
	queue     QueueObserver
	warnRatio float64
}

func NewQueueChecker(queue QueueObserver, warnRatio float64) *QueueChecker {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = 0.8
	}
	return &QueueChecker{queue: queue, warnRatio: warnRatio}
}

func (c *QueueChecker) ListChecks(ctx context.Context) []CheckResult {
	result := CheckResult{ID: "dispatch_queue"}
	if c.queue == nil {
		result.Status = StatusError
		result.Summary = "dispatch queue not configured"
		return []CheckResult{result}
	}
	depth, capacity := c.queue.Depth(), c.queue.Capacity()
	result.Metadata = map[string]any{"depth": depth, "capacity": capacity}
	result.Summary = fmt.Sprintf("%d/%d batches queued", depth, capacity)
	switch {
	case capacity > 0 && depth >= capacity:
		result.Status = StatusError
	case capacity > 0 && float64(depth) >= c.warnRatio*float64(capacity):
		result.Status = StatusWarn
	default:
		result.Status = StatusOK
	}
	return []CheckResult{result}
}
