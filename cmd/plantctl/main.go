package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"plantroom/internal/cli"
)

var CLI struct {
	Replay cli.ReplayCmd `cmd:"" help:"Recompute a room document from its history."`
	Visual cli.VisualCmd `cmd:"" help:"Print plant parameters for a room document."`
	Log    cli.LogCmd    `cmd:"" help:"Append an action to a room document."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("plantctl"),
		kong.Description("Offline tools for plantroom documents"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Context{Out: os.Stdout}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
