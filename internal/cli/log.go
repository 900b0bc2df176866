package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"plantroom/pkg/engine"
)

// LogCmd appends one action to a room document on disk.
type LogCmd struct {
	File   string `arg:"" help:"Room JSON document." type:"existingfile"`
	Action string `help:"water or fight." required:""`
	By     string `help:"Member slot or label." required:""`
	Date   string `help:"Day as YYYY-MM-DD." required:""`
	DryRun bool   `help:"Print the result without writing the file."`
}

func (cmd *LogCmd) Run(ctx *Context) error {
	room, err := readRoom(cmd.File)
	if err != nil {
		return err
	}
	room, err = rebuild(room)
	if err != nil {
		return err
	}
	next, err := engine.Apply(room, engine.Log{Action: cmd.Action, By: cmd.By, Date: cmd.Date})
	if err != nil {
		return err
	}
	if cmd.DryRun {
		return printJSON(ctx.Out, next)
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	if err := os.WriteFile(cmd.File, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write room: %w", err)
	}
	fmt.Fprintf(ctx.Out, "logged %s by %s on %s (streak %d)\n", cmd.Action, cmd.By, cmd.Date, next.Streak)
	return nil
}
