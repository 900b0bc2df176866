package app

import "errors"

var (
	// ErrInvalidRoomID is returned for room ids outside [A-Za-z0-9_-]{1,64}.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrDateInFuture rejects log dates beyond tomorrow (UTC).
	ErrDateInFuture = errors.New("date is in the future")
	// ErrRoomBusy means every commit attempt lost a revision race.
	ErrRoomBusy = errors.New("room is busy, try again")
)
