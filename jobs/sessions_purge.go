package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/jobs"
)

// SessionPurger deletes login session rows that expired before now.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionsPurgeJob removes expired login_sessions rows.
type SessionsPurgeJob struct {
	Purger  SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionsPurgeJob initialises the purge handler.
func NewSessionsPurgeJob(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsPurgeJob {
	return &SessionsPurgeJob{
		Purger:  purger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *SessionsPurgeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Purger == nil {
		return errors.New("sessions purge: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSessionsPurge)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.clock()
	deleted, err := j.Purger.PurgeExpired(ctx, start)
	if err != nil {
		j.logger().Error("purge expired sessions", slog.Any("error", err))
		return err
	}
	j.logger().Info("purged expired sessions",
		slog.Int64("deleted", deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *SessionsPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
