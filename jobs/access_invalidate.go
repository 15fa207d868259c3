package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-dms/odyssey-dms/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Invalidator drops cached permission snapshots. *access.Resolver satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
	InvalidateGroup(ctx context.Context, groupID int64) error
}

// AccessInvalidateJob applies invalidation tasks. The worker's cache shares Redis with the
// HTTP processes, so the drop reaches every process through the invalidation channel.
type AccessInvalidateJob struct {
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewAccessInvalidateJob wires dependencies for the invalidation handlers.
func NewAccessInvalidateJob(invalidator Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccessInvalidateJob {
	return &AccessInvalidateJob{Invalidator: invalidator, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAccessInvalidate tasks.
func (j *AccessInvalidateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Invalidator == nil {
		return errors.New("access invalidate: handler not configured")
	}
	var payload AccessInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("access invalidate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	scope := payload.Scope()
	if scope == "" {
		return fmt.Errorf("%w: %w", ErrEmptyInvalidation, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAccessInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger(TaskAccessInvalidate).With(slog.String("scope", scope))

	switch scope {
	case "all":
		if err := j.Invalidator.InvalidateAll(ctx); err != nil {
			logger.Error("invalidate all", slog.Any("error", err))
			return err
		}
		j.metrics().AddInvalidated(scope, 1)
	case "group":
		if err := j.Invalidator.InvalidateGroup(ctx, payload.GroupID); err != nil {
			logger.Error("invalidate group", slog.Int64("group_id", payload.GroupID), slog.Any("error", err))
			return err
		}
		j.metrics().AddInvalidated(scope, 1)
	default:
		var errs []error
		for _, userID := range payload.UserIDs {
			if err := j.Invalidator.Invalidate(ctx, userID); err != nil {
				logger.Error("invalidate user", slog.Int64("user_id", userID), slog.Any("error", err))
				errs = append(errs, err)
			}
		}
		j.metrics().AddInvalidated(scope, len(payload.UserIDs)-len(errs))
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	logger.Info("access snapshots invalidated")
	return nil
}

// HandleFlush processes TaskAccessFlush tasks.
func (j *AccessInvalidateJob) HandleFlush(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Invalidator == nil {
		return errors.New("access flush: handler not configured")
	}
	tracker := j.metrics().Track(TaskAccessFlush)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	if err := j.Invalidator.InvalidateAll(ctx); err != nil {
		j.logger(TaskAccessFlush).Error("flush access snapshots", slog.Any("error", err))
		return err
	}
	j.metrics().AddInvalidated("all", 1)
	return nil
}

func (j *AccessInvalidateJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *AccessInvalidateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
