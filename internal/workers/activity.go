package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"talkasaurus/internal/queue"
)

// ActivityRecorder is the slice of the user service the activity lane needs.
type ActivityRecorder interface {
	UpdateLastActive(ctx context.Context, pseudonymID string, timestampMs int64) error
}

// ActivityWorker applies deferred "seen at" updates. The lane is single
// attempt: a lost update is replaced by the user's next interaction.
type ActivityWorker struct {
	users ActivityRecorder
}

// NewActivityWorker creates a new activity worker
func NewActivityWorker(users ActivityRecorder) *ActivityWorker {
	return &ActivityWorker{users: users}
}

// Handle processes one activity update job.
func (w *ActivityWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.ActivityUpdatePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad activity payload: %w", err)
	}
	return w.users.UpdateLastActive(ctx, payload.Pseudonym, payload.TimestampMs)
}
