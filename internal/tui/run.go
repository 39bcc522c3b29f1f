// Package tui is the terminal front end. It renders lobby, chat and round
// state from a replication engine and turns typed commands into engine
// calls.
package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"golang.org/x/sync/errgroup"

	"github.com/lox/twentyone/internal/replication"
)

// Options configures a terminal session
type Options struct {
	Title   string
	NoColor bool

	// Setup runs once the engine is consuming events, typically to create
	// or join a lobby. Its error ends the session.
	Setup func(ctx context.Context) error
}

// Run drives engine from the terminal until the user quits or the engine
// stops
func Run(ctx context.Context, engine replication.Engine, logger *log.Logger, opts Options) error {
	if opts.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(engine, opts.Title, logger)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := engine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if opts.Setup == nil {
			return nil
		}
		if err := opts.Setup(gctx); err != nil {
			program.Quit()
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Quitting the program ends the engine
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	return g.Wait()
}
