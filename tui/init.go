package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Init starts fetching the library; the list poller is started once the first page arrives.
func (b *statefulBubble) Init() tea.Cmd {
	b.progressStatus = "Fetching library"
	b.setState(loadingState)
	return tea.Batch(b.startLoading(), b.loadLibrary())
}
