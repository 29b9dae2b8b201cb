// Package mini implements a lightweight, prompt-driven interface for browsing,
// uploading and watching videos.
package mini

import (
	"context"
	"errors"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
)

var (
	truncateAt = 100
)

type Options struct {
	Status string
	// History starts from the watch history instead of the library.
	History bool
}

type mini struct {
	ctx     context.Context
	client  *api.Client
	options *Options

	state         state
	statesHistory util.Stack[state]

	page     *video.Page
	selected *video.Record
}

func newMini(ctx context.Context, client *api.Client, options *Options) *mini {
	return &mini{
		ctx:           ctx,
		client:        client,
		options:       options,
		statesHistory: util.Stack[state]{},
	}
}

func (m *mini) previousState() {
	if m.statesHistory.Len() > 0 {
		m.setState(m.statesHistory.Pop())
	}
}

func (m *mini) setState(s state) {
	m.state = s
}

func (m *mini) newState(s state) {
	if m.state == s {
		return
	}

	if !lo.Contains([]state{uploadState, quitState}, m.state) {
		m.statesHistory.Push(m.state)
	}

	m.setState(s)
}

// Run loops over the prompts until the user quits or interrupts.
func Run(ctx context.Context, client *api.Client, options *Options) error {
	m := newMini(ctx, client, options)
	m.state = librarySelectState
	if options.History {
		m.state = historySelectState
	}

	if w, _, err := util.TerminalSize(); err == nil {
		truncateAt = w
	}

	for m.state != quitState {
		if err := m.handleState(); err != nil {
			if errors.Is(err, terminal.InterruptErr) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	return nil
}

func (m *mini) handleState() error {
	switch m.state {
	case librarySelectState:
		return m.handleLibrarySelectState()
	case actionSelectState:
		return m.handleActionSelectState()
	case uploadState:
		return m.handleUploadState()
	case historySelectState:
		return m.handleHistorySelectState()
	}

	return nil
}
