package cli

import (
	"fmt"

	"plantroom/pkg/visual"
)

// ReplayCmd recomputes the derived fields of a room document.
type ReplayCmd struct {
	File string `arg:"" help:"Room JSON document." type:"existingfile"`
}

func (cmd *ReplayCmd) Run(ctx *Context) error {
	room, err := readRoom(cmd.File)
	if err != nil {
		return err
	}
	out, err := rebuild(room)
	if err != nil {
		return err
	}
	if room.Streak != out.Streak || room.BestStreak != out.BestStreak ||
		room.TotalFights != out.TotalFights || room.TotalPeaceDays != out.TotalPeaceDays {
		fmt.Fprintln(ctx.Out, "note: stored counters differ from replay")
	}
	return printJSON(ctx.Out, out)
}

// VisualCmd prints the plant parameters for a room document.
type VisualCmd struct {
	File string `arg:"" help:"Room JSON document." type:"existingfile"`
}

func (cmd *VisualCmd) Run(ctx *Context) error {
	room, err := readRoom(cmd.File)
	if err != nil {
		return err
	}
	out, err := rebuild(room)
	if err != nil {
		return err
	}
	return printJSON(ctx.Out, visual.Map(out))
}
