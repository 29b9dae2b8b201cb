// Package tui provides the primary terminal user interface implementation.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/reelcast/reelcast/api"
)

// Options encapsulates the runtime configuration for the terminal user interface.
type Options struct {
	// Status limits the library to one processing status when set.
	Status string
}

// Run initializes and executes the primary Bubble Tea application loop.
func Run(ctx context.Context, client *api.Client, options *Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bubble := newBubble(ctx, client, options)
	defer bubble.release()

	_, err := tea.NewProgram(bubble, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
