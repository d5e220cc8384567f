package healthcheck

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testPinger struct {
	err error
}

func (p testPinger) Ping(ctx context.Context) error { return p.err }

type testQueue struct {
	depth, capacity int
}

func (q testQueue) Depth() int    { return q.depth }
func (q testQueue) Capacity() int { return q.capacity }

func TestDatabaseChecker(t *testing.T) {
	t.Parallel()

	ok := NewDatabaseChecker(nil, testPinger{}, time.Second).ListChecks(context.Background())
	if len(ok) != 1 || ok[0].Status != StatusOK {
		t.Fatalf("unexpected result: %+v", ok)
	}

	failed := NewDatabaseChecker(nil, testPinger{err: errors.New("connection refused")}, 0).ListChecks(context.Background())
	if failed[0].Status != StatusError || failed[0].Detail != "connection refused" {
		t.Fatalf("unexpected result: %+v", failed)
	}

	missing := NewDatabaseChecker(nil, nil, 0).ListChecks(context.Background())
	if missing[0].Status != StatusError {
		t.Fatalf("nil database should fail: %+v", missing)
	}
}

func TestQueueChecker(t *testing.T) {
	t.Parallel()

	cases := []struct {
		depth, capacity int
		want            string
	}{
		{0, 10, StatusOK},
		{7, 10, StatusOK},
		{8, 10, StatusWarn},
		{10, 10, StatusError},
	}
	for _, tc := range cases {
		got := NewQueueChecker(testQueue{tc.depth, tc.capacity}, 0).ListChecks(context.Background())
		if got[0].Status != tc.want {
			t.Fatalf("depth=%d capacity=%d status=%s want=%s", tc.depth, tc.capacity, got[0].Status, tc.want)
		}
	}
}

func TestRunAndOverall(t *testing.T) {
	t.Parallel()

	results := Run(context.Background(),
		NewDatabaseChecker(nil, testPinger{}, 0),
		nil,
		NewQueueChecker(testQueue{9, 10}, 0),
	)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if got := Overall(results); got != StatusWarn {
		t.Fatalf("overall = %s, want warn", got)
	}
	results = append(results, CheckResult{ID: "x", Status: StatusError})
	if got := Overall(results); got != StatusError {
		t.Fatalf("overall = %s, want error", got)
	}
	if got := Overall(nil); got != StatusOK {
		t.Fatalf("overall(nil) = %s", got)
	}
}
