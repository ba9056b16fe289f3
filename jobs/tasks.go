package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge removes expired session rows from postgres.
	TaskSessionPurge = "session:purge"
)

// SessionPurgePayload bounds how many rows a single purge run may delete.
type SessionPurgePayload struct {
	BatchSize int `json:"batch_size"`
}

// NewSessionPurgeTask constructs an Asynq task for the purge job.
func NewSessionPurgeTask(payload SessionPurgePayload) (*asynq.Task, error) {
	if payload.BatchSize <= 0 {
		payload.BatchSize = 1000
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}
