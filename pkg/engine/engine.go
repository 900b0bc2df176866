// Package engine turns dated member actions into the derived state of a room.
// Every function here is pure: no clock, no I/O, and the input room is never
// modified.
package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"plantroom/pkg/domain"
)

// MaxLabelRunes caps member display labels.
const MaxLabelRunes = 40

// Command mutates a room through Apply.
type Command interface {
	apply(domain.Room) (domain.Room, error)
}

// Rename replaces both display labels. A nil or blank field resets that
// label to its default.
type Rename struct {
	Me      *string
	Partner *string
}

// Log records one member action for a calendar day.
type Log struct {
	Action string
	By     string
	Date   string
}

// NewRoom returns the initial document for an unseen room id.
func NewRoom(id string) domain.Room {
	return domain.Room{
		ID:      id,
		Me:      domain.DefaultMeLabel,
		Partner: domain.DefaultPartnerLabel,
		Health:  domain.BaselineHealth,
		History: []domain.LogEvent{},
	}
}

// Apply runs cmd against a copy of room and returns the new document.
// On error the returned room is the zero value and room is unchanged.
func Apply(room domain.Room, cmd Command) (domain.Room, error) {
	if cmd == nil {
		return domain.Room{}, invalid("op", "command required")
	}
	return cmd.apply(room.Clone())
}

func (c Rename) apply(room domain.Room) (domain.Room, error) {
	room.Me = label(c.Me, domain.DefaultMeLabel)
	room.Partner = label(c.Partner, domain.DefaultPartnerLabel)
	return room, nil
}

func (c Log) apply(room domain.Room) (domain.Room, error) {
	action, err := ParseAction(c.Action)
	if err != nil {
		return domain.Room{}, err
	}
	if _, err := ParseDate(c.Date); err != nil {
		return domain.Room{}, err
	}
	by, err := ResolveMember(room, c.By)
	if err != nil {
		return domain.Room{}, err
	}
	date := strings.TrimSpace(c.Date)
	if HasLogged(room, date, by) {
		return domain.Room{}, ErrDuplicateLog
	}
	// History stays chronological; the latest day itself is still open.
	if latest := LatestDate(room); date < latest {
		return domain.Room{}, invalid("date", fmt.Sprintf("%s is before the latest logged day %s", date, latest))
	}
	room.History = append(room.History, domain.LogEvent{Date: date, By: by, Action: action})
	return Recompute(room), nil
}

// HasLogged reports whether by already has an event on date.
func HasLogged(room domain.Room, date string, by domain.Member) bool {
	for _, ev := range room.History {
		if ev.Date == date && ev.By == by {
			return true
		}
	}
	return false
}

// LatestDate returns the most recent day in history, or "" when empty.
func LatestDate(room domain.Room) string {
	latest := ""
	for _, ev := range room.History {
		if ev.Date > latest {
			latest = ev.Date
		}
	}
	return latest
}

func label(raw *string, fallback string) string {
	if raw == nil {
		return fallback
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return fallback
	}
	if utf8.RuneCountInString(s) > MaxLabelRunes {
		s = strings.TrimSpace(string([]rune(s)[:MaxLabelRunes]))
	}
	return s
}
