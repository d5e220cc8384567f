package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker reports whether the database answers a ping.
type DatabaseChecker struct {
	db      Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewDatabaseChecker(log *slog.Logger, db Pinger, timeout time.Duration) *DatabaseChecker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DatabaseChecker{
		db:      db,
		timeout: timeout,
		logger:  log.With(slog.String("checker", "healthcheck_database")),
	}
}

func (c *DatabaseChecker) ListChecks(ctx context.Context) []CheckResult {
	result := CheckResult{ID: "database"}
	if c.db == nil {
		result.Status = StatusError
		result.Summary = "database not configured"
		return []CheckResult{result}
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	if err := c.db.Ping(pingCtx); err != nil {
		c.logger.Warn("database ping failed", slog.Any("error", err))
		result.Status = StatusError
		result.Summary = "database unreachable"
		result.Detail = err.Error()
		return []CheckResult{result}
	}
	result.Status = StatusOK
	result.Summary = "database reachable"
	result.Metadata = map[string]any{"latency_ms": time.Since(start).Milliseconds()}
	return []CheckResult{result}
}
