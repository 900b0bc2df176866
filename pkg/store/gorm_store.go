package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"plantroom/pkg/domain"
)

const migrateLockID int64 = 51820417

// GormStore implements RoomStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&RoomModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// GetRoom loads a room row.
func (s *GormStore) GetRoom(ctx context.Context, id string) (Snapshot, bool, error) {
	var model RoomModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	snap, err := snapshotFromModel(model)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// PutRoom inserts a new row or updates the row still at expectedRevision.
func (s *GormStore) PutRoom(ctx context.Context, room domain.Room, expectedRevision string) (string, error) {
	doc, err := json.Marshal(room)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	rev := newRevision()
	now := time.Now().UTC()
	db := s.db.WithContext(ctx)

	if expectedRevision == "" {
		model := RoomModel{
			ID:          room.ID,
			Revision:    rev,
			Document:    datatypes.JSON(doc),
			Streak:      room.Streak,
			BestStreak:  room.BestStreak,
			TotalFights: room.TotalFights,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return "", ErrRevisionConflict
			}
			return "", err
		}
		return rev, nil
	}

	res := db.Model(&RoomModel{}).
		Where("id = ? AND revision = ?", room.ID, expectedRevision).
		Updates(map[string]any{
			"revision":     rev,
			"document":     datatypes.JSON(doc),
			"streak":       room.Streak,
			"best_streak":  room.BestStreak,
			"total_fights": room.TotalFights,
			"updated_at":   now,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrRevisionConflict
	}
	return rev, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func snapshotFromModel(m RoomModel) (Snapshot, error) {
	var room domain.Room
	if err := json.Unmarshal(m.Document, &room); err != nil {
		return Snapshot{}, fmt.Errorf("decode room %s: %w", m.ID, err)
	}
	return Snapshot{Room: room, Revision: m.Revision}, nil
}
