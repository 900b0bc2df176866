package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"plantroom/pkg/domain"
)

// ErrRevisionConflict is returned by PutRoom when the stored revision no
// longer matches the one the caller read.
var ErrRevisionConflict = errors.New("room revision conflict")

// Snapshot is a room document together with the revision it was stored under.
type Snapshot struct {
	Room     domain.Room
	Revision string
}

// RoomStore persists one document per room id with put-if-unchanged semantics.
type RoomStore interface {
	// GetRoom returns the stored snapshot; ok is false for unseen ids.
	GetRoom(ctx context.Context, id string) (snap Snapshot, ok bool, err error)
	// PutRoom writes room if the stored revision equals expectedRevision and
	// returns the new revision. An empty expectedRevision only creates.
	PutRoom(ctx context.Context, room domain.Room, expectedRevision string) (string, error)
	Close() error
}

func newRevision() string {
	return uuid.NewString()
}
