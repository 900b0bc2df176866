package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"plantroom/pkg/domain"
)

const redisOpTimeout = 3 * time.Second

// RedisStore keeps each room as one JSON value and uses WATCH/MULTI for
// put-if-unchanged.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type redisRoomRecord struct {
	Revision string      `json:"revision"`
	Room     domain.Room `json:"room"`
}

// NewRedisStore builds a Redis-backed room store.
func NewRedisStore(addr, password, prefix string) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("room store redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "plantroom:room"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// GetRoom loads a room record.
func (s *RedisStore) GetRoom(ctx context.Context, id string) (Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get room: %w", err)
	}
	rec, err := decodeRedisRecord(raw)
	if err != nil {
		return Snapshot{}, false, err
	}
	return Snapshot{Room: rec.Room, Revision: rec.Revision}, true, nil
}

// PutRoom writes room inside a watched transaction. A concurrent write to the
// same key aborts EXEC and surfaces as ErrRevisionConflict.
func (s *RedisStore) PutRoom(ctx context.Context, room domain.Room, expectedRevision string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	key := s.key(room.ID)
	rev := newRevision()
	payload, err := json.Marshal(redisRoomRecord{Revision: rev, Room: room})
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			if expectedRevision != "" {
				return ErrRevisionConflict
			}
		case err != nil:
			return fmt.Errorf("get room: %w", err)
		default:
			current, err := decodeRedisRecord(raw)
			if err != nil {
				return err
			}
			if current.Revision != expectedRevision {
				return ErrRevisionConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return "", ErrRevisionConflict
	}
	if err != nil {
		return "", err
	}
	return rev, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeRedisRecord(raw []byte) (redisRoomRecord, error) {
	var rec redisRoomRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return redisRoomRecord{}, fmt.Errorf("decode room: %w", err)
	}
	return rec, nil
}
