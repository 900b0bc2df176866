package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"plantroom/pkg/domain"
	"plantroom/pkg/engine"
)

// Context is shared by every plantctl command.
type Context struct {
	Out io.Writer
}

func readRoom(path string) (domain.Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Room{}, fmt.Errorf("read room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("parse room: %w", err)
	}
	return room, nil
}

// rebuild replays every history event through the engine so a hand-edited
// document gets the same checks as live traffic.
func rebuild(room domain.Room) (domain.Room, error) {
	out := engine.NewRoom(room.ID)
	out.Me, out.Partner = room.Me, room.Partner
	if out.Me == "" {
		out.Me = domain.DefaultMeLabel
	}
	if out.Partner == "" {
		out.Partner = domain.DefaultPartnerLabel
	}
	for i, ev := range room.History {
		next, err := engine.Apply(out, engine.Log{Action: string(ev.Action), By: string(ev.By), Date: ev.Date})
		if err != nil {
			return domain.Room{}, fmt.Errorf("history[%d] %s/%s: %w", i, ev.Date, ev.By, err)
		}
		out = next
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
