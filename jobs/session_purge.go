package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/rollcall-hq/rollcall/internal/jobs"
)

// PurgeExpiredSessions deletes session rows whose expiry has passed. The
// Redis copies expire on their own; this keeps the postgres mirror from
// growing without bound.
func PurgeExpiredSessions(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, batchSize int) error {
	if pool == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	tag, err := pool.Exec(ctx,
		`DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE expires_at < NOW() LIMIT $1
		)`, batchSize)
	if err != nil {
		if logger != nil {
			logger.Error("purge expired sessions", slog.Any("error", err))
		}
		return err
	}
	if logger != nil {
		logger.Info("purged expired sessions",
			slog.String("job", "session_purge"),
			slog.Int64("deleted", tag.RowsAffected()))
	}
	return nil
}

// NewSessionPurgeHandler adapts PurgeExpiredSessions to an Asynq handler.
func NewSessionPurgeHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_purge")
		var payload SessionPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return tracker.End(PurgeExpiredSessions(ctx, pool, logger, payload.BatchSize))
	}
}
