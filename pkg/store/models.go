package store

import (
	"time"

	"gorm.io/datatypes"
)

// RoomModel is the GORM row for a room document. The document column is the
// source of truth; the counter columns are copies for ad-hoc queries.
type RoomModel struct {
	ID          string         `gorm:"primaryKey"`
	Revision    string         `gorm:"not null"`
	Document    datatypes.JSON `gorm:"type:jsonb;not null"`
	Streak      int            `gorm:"not null"`
	BestStreak  int            `gorm:"not null"`
	TotalFights int            `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null;index"`
}
