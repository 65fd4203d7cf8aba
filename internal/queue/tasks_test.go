package queue

import (
	"testing"
	"time"
)

func TestNewPublishTaskRoundTrip(t *testing.T) {
	runAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	task, opts, err := NewPublishTask("post-1", "user-1", runAt, 5, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewPublishTask: %v", err)
	}
	if task.Type() != TaskPublishPost {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	if len(opts) != 5 {
		t.Fatalf("expected 5 options, got %d", len(opts))
	}

	payload, err := DecodePublishPayload(task.Payload())
	if err != nil {
		t.Fatalf("DecodePublishPayload: %v", err)
	}
	if payload.PostID != "post-1" || payload.UserID != "user-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if !payload.ScheduledAt.Equal(runAt) {
		t.Fatalf("expected scheduled at %v, got %v", runAt, payload.ScheduledAt)
	}
}

func TestDecodePublishPayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodePublishPayload([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{10, 30 * time.Minute},
	}
	for _, tc := range tests {
		if got := RetryDelay(tc.n, nil, nil); got != tc.want {
			t.Fatalf("RetryDelay(%d): expected %s, got %s", tc.n, tc.want, got)
		}
	}
}

func TestDelayUntilNeverNegative(t *testing.T) {
	now := time.Now()
	if got := DelayUntil(now.Add(-time.Hour), now); got != 0 {
		t.Fatalf("past-due delay should be 0, got %s", got)
	}
	if got := DelayUntil(now.Add(10*time.Minute), now); got != 10*time.Minute {
		t.Fatalf("expected 10m, got %s", got)
	}
}
