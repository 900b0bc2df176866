package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plantroom/internal/util"
	"plantroom/pkg/domain"
	"plantroom/pkg/engine"
	"plantroom/pkg/queue"
	"plantroom/pkg/storage"
	"plantroom/pkg/store"
	"plantroom/pkg/visual"
)

const (
	defaultMaxCommitRetries = 5
	maxRoomIDLen            = 64
	archiveTimeout          = 5 * time.Second
)

// Config holds runtime configuration for the room service core.
type Config struct {
	// Store overrides the driver settings below when set.
	Store          store.RoomStore
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	// Objects overrides the MinIO settings below when set.
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// ArchiveQueue overrides ArchiveQueueStream when set. With a queue,
	// snapshots are uploaded by RunArchiveWorker instead of inline.
	ArchiveQueue       ArchiveQueue
	ArchiveQueueStream string

	MaxCommitRetries int
	Now              func() time.Time
}

// ArchiveQueue hands snapshot uploads to background workers.
type ArchiveQueue interface {
	Enqueue(ctx context.Context, roomID, revision string) error
	Start(ctx context.Context, concurrency int, handler queue.Handler)
	Close() error
}

// App loads rooms, applies engine commands and commits the result with
// optimistic concurrency.
type App struct {
	rooms      store.RoomStore
	objects    storage.ObjectStore
	archiveQ   ArchiveQueue
	maxRetries int
	now        func() time.Time
}

// New constructs the application and opens the configured room store.
func New(cfg Config) (*App, error) {
	rooms := cfg.Store
	if rooms == nil {
		var err error
		rooms, err = openRoomStore(cfg)
		if err != nil {
			return nil, err
		}
	}
	objects := cfg.Objects
	if objects == nil && strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			_ = rooms.Close()
			return nil, fmt.Errorf("init snapshot archive: %w", err)
		}
		objects = minioStore
	}
	archiveQ := cfg.ArchiveQueue
	if archiveQ == nil && objects != nil && strings.TrimSpace(cfg.ArchiveQueueStream) != "" {
		q, err := queue.NewRedisArchiveQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.ArchiveQueueStream,
		})
		if err != nil {
			_ = rooms.Close()
			return nil, fmt.Errorf("init archive queue: %w", err)
		}
		archiveQ = q
	}
	maxRetries := cfg.MaxCommitRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxCommitRetries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		rooms:      rooms,
		objects:    objects,
		archiveQ:   archiveQ,
		maxRetries: maxRetries,
		now:        now,
	}, nil
}

func openRoomStore(cfg Config) (store.RoomStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Close releases the room store and archive queue.
func (a *App) Close() error {
	var errs []error
	if a.archiveQ != nil {
		errs = append(errs, a.archiveQ.Close())
	}
	errs = append(errs, a.rooms.Close())
	return errors.Join(errs...)
}

// GetRoom returns the room and its revision, creating and persisting the
// initial document for an unseen id.
func (a *App) GetRoom(ctx context.Context, id string) (domain.Room, string, error) {
	if err := ValidateRoomID(id); err != nil {
		return domain.Room{}, "", err
	}
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		snap, ok, err := a.rooms.GetRoom(ctx, id)
		if err != nil {
			return domain.Room{}, "", fmt.Errorf("load room: %w", err)
		}
		if ok {
			return snap.Room, snap.Revision, nil
		}
		room := engine.NewRoom(id)
		rev, err := a.rooms.PutRoom(ctx, room, "")
		if errors.Is(err, store.ErrRevisionConflict) {
			// Someone else created it first; read theirs.
			continue
		}
		if err != nil {
			return domain.Room{}, "", fmt.Errorf("create room: %w", err)
		}
		util.LoggerFromContext(ctx).Info("room created", "room_id", id)
		a.archive(ctx, room, rev)
		return room, rev, nil
	}
	return domain.Room{}, "", ErrRoomBusy
}

// Visual maps the current room onto plant parameters.
func (a *App) Visual(ctx context.Context, id string) (visual.Params, error) {
	room, _, err := a.GetRoom(ctx, id)
	if err != nil {
		return visual.Params{}, err
	}
	return visual.Map(room), nil
}

// Rename updates member display labels.
func (a *App) Rename(ctx context.Context, id string, me, partner *string) (domain.Room, error) {
	return a.apply(ctx, id, engine.Rename{Me: me, Partner: partner})
}

// Log records a member action. Duplicates surface as engine.ErrDuplicateLog.
func (a *App) Log(ctx context.Context, id, action, by, date string) (domain.Room, error) {
	day, err := engine.ParseDate(date)
	if err != nil {
		return domain.Room{}, err
	}
	// One day of slack for members ahead of UTC.
	if day.After(a.now().UTC().AddDate(0, 0, 1)) {
		return domain.Room{}, ErrDateInFuture
	}
	return a.apply(ctx, id, engine.Log{Action: action, By: by, Date: date})
}

func (a *App) apply(ctx context.Context, id string, cmd engine.Command) (domain.Room, error) {
	if err := ValidateRoomID(id); err != nil {
		return domain.Room{}, err
	}
	logger := util.LoggerFromContext(ctx).With("room_id", id)
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Room{}, err
		}
		snap, ok, err := a.rooms.GetRoom(ctx, id)
		if err != nil {
			return domain.Room{}, fmt.Errorf("load room: %w", err)
		}
		current := snap.Room
		if !ok {
			current = engine.NewRoom(id)
		}
		next, err := engine.Apply(current, cmd)
		if err != nil {
			return domain.Room{}, err
		}
		rev, err := a.rooms.PutRoom(ctx, next, snap.Revision)
		if errors.Is(err, store.ErrRevisionConflict) {
			logger.Debug("room commit conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Room{}, fmt.Errorf("save room: %w", err)
		}
		a.archive(ctx, next, rev)
		return next, nil
	}
	logger.Warn("room commit retries exhausted", "attempts", a.maxRetries+1)
	return domain.Room{}, ErrRoomBusy
}

// archive is best effort: the commit already succeeded.
func (a *App) archive(ctx context.Context, room domain.Room, rev string) {
	if a.objects == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	logger := util.LoggerFromContext(ctx)
	if a.archiveQ != nil {
		if err := a.archiveQ.Enqueue(ctx, room.ID, rev); err != nil {
			logger.Warn("enqueue room snapshot failed", "room_id", room.ID, "err", err)
		}
		return
	}
	if err := storage.PutRoomSnapshot(ctx, a.objects, room, rev); err != nil {
		logger.Warn("archive room snapshot failed", "room_id", room.ID, "err", err)
	}
}

// RunArchiveWorker consumes queued snapshot jobs until ctx is done. It
// returns immediately when archiving is inline or disabled.
func (a *App) RunArchiveWorker(ctx context.Context, concurrency int) {
	if a.archiveQ == nil || a.objects == nil {
		return
	}
	a.archiveQ.Start(ctx, concurrency, a.ArchiveSnapshot)
	<-ctx.Done()
}

// ArchiveSnapshot uploads the stored room for job. Jobs for a revision that
// has since been replaced are skipped; the newer commit queued its own job.
func (a *App) ArchiveSnapshot(ctx context.Context, job queue.ArchiveJob) error {
	if a.objects == nil {
		return nil
	}
	snap, ok, err := a.rooms.GetRoom(ctx, job.RoomID)
	if err != nil {
		return fmt.Errorf("load room: %w", err)
	}
	if !ok || (job.Revision != "" && snap.Revision != job.Revision) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	return storage.PutRoomSnapshot(ctx, a.objects, snap.Room, snap.Revision)
}

// ValidateRoomID accepts 1-64 characters of [A-Za-z0-9_-].
func ValidateRoomID(id string) error {
	if id == "" || len(id) > maxRoomIDLen {
		return ErrInvalidRoomID
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ErrInvalidRoomID
		}
	}
	return nil
}
