package batch

import (
	"context"
	"log/slog"
)

// CompensatedOperation describes one operation that had already been
// dispatched when its changeset aborted.
type CompensatedOperation struct {
	Method     string
	URL        string
	StatusCode int
}

// CompensationLog receives the already-completed operations of an
// aborted changeset.
//
// Contract: implementations record the operations so operators can act
// on them; inverse operations are NOT reconstructed or replayed. The
// engine's changeset atomicity is best-effort: a changeset that aborts
// midway leaves its completed writes in place, and this log is the only
// trace of them. Callers needing true atomicity must bring a
// transactional record store instead.
type CompensationLog interface {
	// Record is called once per completed operation, in execution
	// order, when the surrounding changeset aborts.
	Record(ctx context.Context, op CompensatedOperation)
}

// LoggedCompensation is the default CompensationLog: it writes each
// entry to the structured log and nothing else.
type LoggedCompensation struct {
	logger *slog.Logger
}

// NewLoggedCompensation creates the default compensation log.
func NewLoggedCompensation(logger *slog.Logger) *LoggedCompensation {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedCompensation{logger: logger}
}

// Record logs the rollback intent. The inverse operation is not
// executed.
func (c *LoggedCompensation) Record(_ context.Context, op CompensatedOperation) {
	c.logger.Warn("Changeset rollback intended but not executed",
		"method", op.Method,
		"url", op.URL,
		"status", op.StatusCode,
	)
}
