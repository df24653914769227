package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TypeDataCleanup deletes old terminal task records.
const TypeDataCleanup = task.TypeDataCleanup

// DefaultRetentionDays applies when neither the task nor the config sets one.
const DefaultRetentionDays = 30

// Purger deletes terminal task records older than a cutoff. *task.Manager satisfies it.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DataCleanupParams is the payload of a data_cleanup task.
type DataCleanupParams struct {
	OlderThanDays int `json:"older_than_days,omitempty" validate:"gte=0,lte=3650"`
}

// DataCleanupResult is stored as the task result.
type DataCleanupResult struct {
	OlderThanDays int   `json:"older_than_days"`
	Deleted       int64 `json:"deleted"`
}

// DataCleaner enforces the task record retention window.
type DataCleaner struct {
	purger        Purger
	retentionDays int
	logger        *slog.Logger
}

// NewDataCleaner creates a DataCleaner. A non-positive retention falls back
// to DefaultRetentionDays.
func NewDataCleaner(purger Purger, retentionDays int, log *slog.Logger) *DataCleaner {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &DataCleaner{
		purger:        purger,
		retentionDays: retentionDays,
		logger:        log.With("job", string(TypeDataCleanup)),
	}
}

// Run deletes the expired records.
func (c *DataCleaner) Run(ctx context.Context, p DataCleanupParams) (string, error) {
	if c.purger == nil {
		return "", task.Permanent(task.ErrNilManager)
	}

	days := p.OlderThanDays
	if days == 0 {
		days = c.retentionDays
	}

	deleted, err := c.purger.Purge(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return "", err
	}

	logger.FromContextOrDefault(ctx, c.logger).Info("task records purged",
		"older_than_days", days,
		"deleted", deleted)

	return encodeResult(DataCleanupResult{OlderThanDays: days, Deleted: deleted})
}
