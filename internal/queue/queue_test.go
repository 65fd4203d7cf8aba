package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// testQueue connects to the Redis instance named by TEST_REDIS_ADDR, or
// skips the test when none is available. The queue name is unique per
// test so runs never see each other's jobs.
func testQueue(t *testing.T) (*PublishQueue, *asynq.Inspector, string) {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skipf("TEST_REDIS_ADDR not set, skipping Redis integration test")
	}

	redisOpt := asynq.RedisClientOpt{Addr: addr, DB: 15}
	queueName := "posts_test_" + primitive.NewObjectID().Hex()

	q := NewPublishQueue(redisOpt, Options{Queue: queueName})
	inspector := asynq.NewInspector(redisOpt)
	t.Cleanup(func() {
		inspector.DeleteAllScheduledTasks(queueName)
		inspector.DeleteAllPendingTasks(queueName)
		inspector.Close()
		q.Close()
	})

	return q, inspector, queueName
}

func TestEnqueuePublishAtMostOneJobPerPost(t *testing.T) {
	q, inspector, queueName := testQueue(t)
	ctx := context.Background()

	postID := primitive.NewObjectID().Hex()
	userID := primitive.NewObjectID().Hex()

	// Repeated enqueues, as the sweeper produces on every run, must never
	// stack up jobs for one post.
	for i := 0; i < 3; i++ {
		if _, err := q.EnqueuePublish(ctx, postID, userID, time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("EnqueuePublish %d: %v", i, err)
		}
	}

	info, err := inspector.GetQueueInfo(queueName)
	if err != nil {
		t.Fatalf("GetQueueInfo: %v", err)
	}
	if info.Size != 1 {
		t.Fatalf("expected exactly one job for the post, queue holds %d", info.Size)
	}
}

func TestEnqueuePublishReplacesDueTime(t *testing.T) {
	q, inspector, queueName := testQueue(t)
	ctx := context.Background()

	postID := primitive.NewObjectID().Hex()
	userID := primitive.NewObjectID().Hex()

	if _, err := q.EnqueuePublish(ctx, postID, userID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("first EnqueuePublish: %v", err)
	}

	// Rescheduling replaces the waiting job with the new due time.
	rescheduled := time.Now().Add(3 * time.Hour)
	if _, err := q.EnqueuePublish(ctx, postID, userID, rescheduled); err != nil {
		t.Fatalf("second EnqueuePublish: %v", err)
	}

	task, err := inspector.GetTaskInfo(queueName, postID)
	if err != nil {
		t.Fatalf("GetTaskInfo: %v", err)
	}
	if diff := task.NextProcessAt.Sub(rescheduled); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expected job due around %v, got %v", rescheduled, task.NextProcessAt)
	}

	payload, err := DecodePublishPayload(task.Payload)
	if err != nil {
		t.Fatalf("DecodePublishPayload: %v", err)
	}
	if payload.PostID != postID {
		t.Fatalf("expected payload for post %s, got %s", postID, payload.PostID)
	}
}

func TestCancelPublishRemovesJob(t *testing.T) {
	q, inspector, queueName := testQueue(t)
	ctx := context.Background()

	postID := primitive.NewObjectID().Hex()
	if _, err := q.EnqueuePublish(ctx, postID, primitive.NewObjectID().Hex(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("EnqueuePublish: %v", err)
	}

	if err := q.CancelPublish(ctx, postID); err != nil {
		t.Fatalf("CancelPublish: %v", err)
	}

	info, err := inspector.GetQueueInfo(queueName)
	if err != nil {
		t.Fatalf("GetQueueInfo: %v", err)
	}
	if info.Size != 0 {
		t.Fatalf("expected empty queue after cancel, holds %d", info.Size)
	}

	// Cancelling an absent job is a no-op.
	if err := q.CancelPublish(ctx, postID); err != nil {
		t.Fatalf("CancelPublish of absent job: %v", err)
	}
}
