// clipgif TUI - terminal monitor for a clipgif server's job queue,
// encoder backends and message hub.
package main

import (
	"fmt"
	"os"

	"github.com/iconidentify/clipgif/cmd/clipgif-tui/internal/config"
	"github.com/iconidentify/clipgif/cmd/clipgif-tui/internal/ui"
)

func main() {
	cfg := config.Load()

	app, err := ui.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing TUI: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
