package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"plantroom/internal/util"
)

// ArchiveJob asks a worker to snapshot one committed room revision.
type ArchiveJob struct {
	RoomID   string
	Revision string
	Attempts int
}

// Handler processes one job. A non-nil error schedules a retry until the
// queue's MaxRetries is reached.
type Handler func(context.Context, ArchiveJob) error

// RedisArchiveQueue is a Redis Streams consumer-group queue of archive jobs.
type RedisArchiveQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
}

func NewRedisArchiveQueue(cfg RedisQueueConfig) (*RedisArchiveQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "archivers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	q := &RedisArchiveQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxRetries:   orDefault(cfg.MaxRetries, 3),
		block:        orDefault(cfg.Block, 5*time.Second),
		claimIdle:    orDefault(cfg.ClaimIdle, 30*time.Second),
		retryDelay:   orDefault(cfg.RetryDelay, 2*time.Second),
		maxLen:       orDefault(cfg.MaxLen, int64(10000)),
		readCount:    orDefault(cfg.ReadCount, int64(10)),
	}
	return q, nil
}

func orDefault[T int | int64 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Enqueue adds a job for roomID at revision.
func (q *RedisArchiveQueue) Enqueue(ctx context.Context, roomID, revision string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return errors.New("room id required")
	}
	return q.add(ctx, q.client, ArchiveJob{RoomID: roomID, Revision: revision})
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

func (q *RedisArchiveQueue) add(ctx context.Context, c streamAdder, job ArchiveJob) error {
	err := c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"room_id":  job.RoomID,
			"revision": job.Revision,
			"attempts": strconv.Itoa(job.Attempts),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue archive job: %w", err)
	}
	return nil
}

// Start runs concurrency consumers until ctx is cancelled.
func (q *RedisArchiveQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

// Close releases the Redis connection pool.
func (q *RedisArchiveQueue) Close() error {
	return q.client.Close()
}

// ensureGroup starts the group at the stream head so jobs enqueued before
// the first worker are still delivered.
func (q *RedisArchiveQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("archive queue group create failed", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisArchiveQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for ctx.Err() == nil {
		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisArchiveQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.readCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

func (q *RedisArchiveQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	job, ok := decodeJob(msg.Values)
	if !ok {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job.Attempts++
	err := handler(ctx, job)
	if err == nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger := slog.With("room_id", job.RoomID, "revision", job.Revision, "attempts", job.Attempts, "err", err)
	if job.Attempts >= q.maxRetries {
		logger.Warn("archive job dropped")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	logger.Info("archive job failed, requeueing")
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}
	if err := q.requeueAndAck(ctx, msg.ID, job); err != nil {
		logger.Warn("archive job requeue failed", "requeue_err", err)
	}
}

func (q *RedisArchiveQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck re-adds job and acks msgID atomically; on failure the
// original message stays pending and is reclaimed later.
func (q *RedisArchiveQueue) requeueAndAck(ctx context.Context, msgID string, job ArchiveJob) error {
	pipe := q.client.TxPipeline()
	if err := q.add(ctx, pipe, job); err != nil {
		return err
	}
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func decodeJob(values map[string]any) (ArchiveJob, bool) {
	roomID, _ := values["room_id"].(string)
	if roomID == "" {
		return ArchiveJob{}, false
	}
	revision, _ := values["revision"].(string)
	job := ArchiveJob{RoomID: roomID, Revision: revision}
	if raw, _ := values["attempts"].(string); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			job.Attempts = n
		}
	}
	return job, true
}
