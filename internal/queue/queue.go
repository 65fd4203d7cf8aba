// Package queue wraps asynq as the durable, delay-capable publish queue.
// The queue is never authoritative: it can be flushed or lost at any time
// and the reconciliation sweep rebuilds it from the post store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"social-publisher-platform/internal/logger"
	"social-publisher-platform/models"
)

// Enqueuer is the narrow contract services depend on; tests substitute
// an in-memory fake.
type Enqueuer interface {
	EnqueuePublish(ctx context.Context, postID, userID string, runAt time.Time) (string, error)
	CancelPublish(ctx context.Context, postID string) error
}

// Options tune the publish queue.
type Options struct {
	Queue     string
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// PublishQueue is the asynq-backed job queue with explicit lifecycle:
// construct it once per process and Close it on shutdown.
type PublishQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
}

func NewPublishQueue(redisOpt asynq.RedisConnOpt, opts Options) *PublishQueue {
	if opts.Queue == "" {
		opts.Queue = "posts"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}

	return &PublishQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts,
	}
}

func (q *PublishQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.inspector.Close()
}

// EnqueuePublish is idempotent per post id. A post that already has a
// waiting or delayed job gets that job replaced with the new due time; a
// post whose job is actively running keeps it (the worker owns in-flight
// semantics).
func (q *PublishQueue) EnqueuePublish(ctx context.Context, postID, userID string, runAt time.Time) (string, error) {
	task, taskOpts, err := NewPublishTask(postID, userID, runAt, q.opts.MaxRetry, q.opts.Timeout, q.opts.Retention)
	if err != nil {
		return "", fmt.Errorf("build publish task: %w", err)
	}
	taskOpts = append(taskOpts, asynq.Queue(q.opts.Queue))

	info, err := q.client.EnqueueContext(ctx, task, taskOpts...)
	if err == nil {
		return info.ID, nil
	}
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", fmt.Errorf("enqueue publish task: %w", err)
	}

	// A job for this post already exists. Replace it unless it is mid-
	// execution; an active job cannot be touched from here.
	existing, inspectErr := q.inspector.GetTaskInfo(q.opts.Queue, postID)
	if inspectErr == nil && existing.State == asynq.TaskStateActive {
		logger.Debug("Publish job already running, keeping it", "post_id", postID)
		return existing.ID, nil
	}

	if delErr := q.inspector.DeleteTask(q.opts.Queue, postID); delErr != nil {
		// Raced with the worker picking it up; the running attempt wins.
		logger.Debug("Could not replace publish job", "post_id", postID, "error", delErr)
		return postID, nil
	}

	info, err = q.client.EnqueueContext(ctx, task, taskOpts...)
	if err != nil {
		return "", fmt.Errorf("re-enqueue publish task: %w", err)
	}
	return info.ID, nil
}

// CancelPublish removes a waiting or delayed job. Absent and actively
// running jobs are a no-op.
func (q *PublishQueue) CancelPublish(ctx context.Context, postID string) error {
	existing, err := q.inspector.GetTaskInfo(q.opts.Queue, postID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return fmt.Errorf("inspect publish task: %w", err)
	}
	if existing.State == asynq.TaskStateActive {
		return nil
	}

	if err := q.inspector.DeleteTask(q.opts.Queue, postID); err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("delete publish task: %w", err)
	}
	return nil
}

// Stats maps asynq's queue buckets onto the admin surface's view:
// waiting=pending, delayed=scheduled+retry, failed=archived.
func (q *PublishQueue) Stats(ctx context.Context) (*models.QueueStats, error) {
	info, err := q.inspector.GetQueueInfo(q.opts.Queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return &models.QueueStats{}, nil
		}
		return nil, fmt.Errorf("queue info: %w", err)
	}

	return &models.QueueStats{
		Waiting:   info.Pending,
		Active:    info.Active,
		Completed: info.Completed,
		Failed:    info.Archived,
		Delayed:   info.Scheduled + info.Retry,
		Total:     info.Size,
	}, nil
}

// ListJobs returns one bucket of jobs for the admin surface. Valid kinds:
// waiting, active, delayed, completed, failed.
func (q *PublishQueue) ListJobs(ctx context.Context, kind string, page, pageSize int) ([]models.Job, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	pageOpts := []asynq.ListOption{asynq.Page(page), asynq.PageSize(pageSize)}

	var (
		tasks []*asynq.TaskInfo
		err   error
	)
	switch kind {
	case "waiting":
		tasks, err = q.inspector.ListPendingTasks(q.opts.Queue, pageOpts...)
	case "active":
		tasks, err = q.inspector.ListActiveTasks(q.opts.Queue, pageOpts...)
	case "delayed":
		tasks, err = q.inspector.ListScheduledTasks(q.opts.Queue, pageOpts...)
		if err == nil {
			retry, retryErr := q.inspector.ListRetryTasks(q.opts.Queue, pageOpts...)
			if retryErr == nil {
				tasks = append(tasks, retry...)
			}
		}
	case "completed":
		tasks, err = q.inspector.ListCompletedTasks(q.opts.Queue, pageOpts...)
	case "failed":
		tasks, err = q.inspector.ListArchivedTasks(q.opts.Queue, pageOpts...)
	default:
		return nil, fmt.Errorf("unknown job bucket %q", kind)
	}
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return []models.Job{}, nil
		}
		return nil, fmt.Errorf("list %s tasks: %w", kind, err)
	}

	now := time.Now()
	jobs := make([]models.Job, 0, len(tasks))
	for _, t := range tasks {
		jobs = append(jobs, taskToJob(t, now))
	}
	return jobs, nil
}

func taskToJob(t *asynq.TaskInfo, now time.Time) models.Job {
	job := models.Job{
		ID:           t.ID,
		State:        t.State.String(),
		AttemptsMade: t.Retried,
		FailedReason: t.LastErr,
	}

	if payload, err := DecodePublishPayload(t.Payload); err == nil {
		job.Data = models.JobData{PostID: payload.PostID, UserID: payload.UserID}
		job.Timestamp = payload.ScheduledAt
	}
	if !t.LastFailedAt.IsZero() {
		failedAt := t.LastFailedAt
		job.ProcessedOn = &failedAt
	}
	if !t.CompletedAt.IsZero() {
		completedAt := t.CompletedAt
		job.FinishedOn = &completedAt
		job.ProcessedOn = &completedAt
	}
	if !t.NextProcessAt.IsZero() && t.NextProcessAt.After(now) {
		job.Delay = t.NextProcessAt.Sub(now).Milliseconds()
	}
	return job
}
