package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, cfg RedisQueueConfig) *RedisArchiveQueue {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	cfg.Addr = redisSrv.Addr()
	if cfg.Stream == "" {
		cfg.Stream = "test:archive"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	q, err := NewRedisArchiveQueue(cfg)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNewRedisArchiveQueueValidates(t *testing.T) {
	if _, err := NewRedisArchiveQueue(RedisQueueConfig{Stream: "s"}); err == nil {
		t.Fatalf("expected error without addr")
	}
	if _, err := NewRedisArchiveQueue(RedisQueueConfig{Addr: "localhost:6379"}); err == nil {
		t.Fatalf("expected error without stream")
	}
}

func TestArchiveQueueDeliversJobsEnqueuedBeforeStart(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{Block: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, "room-1", "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := make(chan ArchiveJob, 1)
	q.Start(ctx, 1, func(_ context.Context, job ArchiveJob) error {
		got <- job
		return nil
	})

	select {
	case job := <-got:
		if job.RoomID != "room-1" || job.Revision != "rev-1" || job.Attempts != 1 {
			t.Fatalf("unexpected job: %+v", job)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job was not delivered")
	}
}

func TestArchiveQueueRetriesThenDrops(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{
		Block:      50 * time.Millisecond,
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 4)
	q.Start(ctx, 1, func(_ context.Context, job ArchiveJob) error {
		attempts <- job.Attempts
		return errors.New("bucket unavailable")
	})
	if err := q.Enqueue(ctx, "room-1", "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for want := 1; want <= 2; want++ {
		select {
		case n := <-attempts:
			if n != want {
				t.Fatalf("attempt = %d, want %d", n, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("attempt %d was not delivered", want)
		}
	}
	select {
	case n := <-attempts:
		t.Fatalf("job delivered again after max retries (attempt %d)", n)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{})
	ctx := context.Background()
	q.ensureGroup(ctx)

	if err := q.Enqueue(ctx, "room-1", "rev-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil || len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("readgroup: %v %+v", err, streams)
	}
	msgID := streams[0].Messages[0].ID

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, ArchiveJob{RoomID: "room-1", Revision: "rev-1", Attempts: 1}); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}

	if err := q.requeueAndAck(ctx, msgID, ArchiveJob{RoomID: "room-1", Revision: "rev-1", Attempts: 1}); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}
	pending, err = q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}
}
