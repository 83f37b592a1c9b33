// Package tui is the interactive device list.
//
// Every Manager call runs in a tea.Cmd, never on the event loop, and its
// result comes back as a message. The model allows one operation in flight
// and ignores results that do not belong to it.
package tui

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
)

// Options configures an App.
type Options struct {
	Settings
	// AltScreen runs the program in the alternate screen buffer.
	AltScreen bool
}

// App wraps the bubbletea program.
type App struct {
	program *tea.Program
}

// NewApp creates the program. ctx bounds every Manager call the UI makes.
func NewApp(ctx context.Context, ctrl Controller, opts Options) *App {
	var progOpts []tea.ProgramOption
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	return &App{
		program: tea.NewProgram(NewModel(ctx, ctrl, opts.Settings), progOpts...),
	}
}

// Run blocks until the user quits or the process receives SIGINT or SIGTERM.
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigChan)
		close(done)
	}()

	go func() {
		select {
		case <-sigChan:
			a.program.Send(tea.Quit())
		case <-done:
		}
	}()

	_, err := a.program.Run()
	return err
}

// ApplySettings hands reloaded settings to the running program.
func (a *App) ApplySettings(s Settings) {
	a.program.Send(settingsMsg{settings: s})
}
