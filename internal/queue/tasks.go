package queue

import (
	"encoding/json"
	"math"
	"time"

	"github.com/hibiken/asynq"
)

// TaskPublishPost is the only task type this system enqueues: one pending
// publish attempt for one post.
const TaskPublishPost = "post:publish"

// PublishPayload travels with each queue job. The worker trusts it only
// for the ids and reloads everything else fresh from the store.
type PublishPayload struct {
	PostID      string    `json:"postId"`
	UserID      string    `json:"userId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// NewPublishTask builds the asynq task for one post. The task id equals
// the post id, which is what enforces at-most-one-active-job-per-post.
func NewPublishTask(postID, userID string, runAt time.Time, maxRetry int, timeout, retention time.Duration) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(PublishPayload{
		PostID:      postID,
		UserID:      userID,
		ScheduledAt: runAt,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []asynq.Option{
		asynq.TaskID(postID),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(timeout),
		asynq.Retention(retention),
		asynq.ProcessAt(runAt),
	}
	return asynq.NewTask(TaskPublishPost, payload), opts, nil
}

// DecodePublishPayload unpacks a task payload.
func DecodePublishPayload(data []byte) (*PublishPayload, error) {
	var p PublishPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RetryDelay is the exponential backoff schedule for failed publish
// attempts: 30s, 1m, 2m, 4m, ... capped at 30m.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := time.Duration(math.Pow(2, float64(n))) * 30 * time.Second
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	return delay
}

// DelayUntil computes the queue delay for a due time: past-due posts run
// immediately, never with a negative delay.
func DelayUntil(runAt, now time.Time) time.Duration {
	d := runAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
