package healthcheck

import "context"

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

// CheckResult is one readiness item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more readiness checks.
type Checker interface {
	ListChecks(ctx context.Context) []CheckResult
}

// Run collects results from every checker in order.
func Run(ctx context.Context, checkers ...Checker) []CheckResult {
	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		results = append(results, c.ListChecks(ctx)...)
	}
	return results
}

// Overall folds results into the worst status. No results is ok.
func Overall(results []CheckResult) string {
	status := StatusOK
	for _, r := range results {
		switch r.Status {
		case StatusError:
			return StatusError
		case StatusWarn:
			status = StatusWarn
		}
	}
	return status
}
