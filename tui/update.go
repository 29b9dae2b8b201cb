package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/internal/ui"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/upload"
	"github.com/reelcast/reelcast/video"
)

func (b *statefulBubble) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if uiCmd := b.notifier.Update(msg); uiCmd != nil {
		cmds = append(cmds, uiCmd)
	}

	switch msg := msg.(type) {
	case error:
		b.stopLoading()
		b.raiseError(msg)
		return b, tea.Batch(cmds...)
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spinnerC, cmd = b.spinnerC.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if bubblesKey.Matches(msg, b.keymap.forceQuit) {
			return b, tea.Quit
		}
	default:
		if handled, cmd := b.handleAsync(msg); handled {
			return b, tea.Batch(append(cmds, cmd)...)
		}
	}

	var cmd tea.Cmd
	switch b.state {
	case loadingState:
		cmd = b.updateLoading(msg)
	case libraryState:
		cmd = b.updateLibrary(msg)
	case watchState:
		cmd = b.updateWatch(msg)
	case qualityState:
		cmd = b.updateQuality(msg)
	case uploadState:
		cmd = b.updateUpload(msg)
	case confirmState:
		cmd = b.updateConfirm(msg)
	case errorState:
		cmd = b.updateError(msg)
	}

	return b, tea.Batch(append(cmds, cmd)...)
}

// handleAsync consumes results of background work. Results from workers that
// were replaced or stopped in the meantime are dropped.
func (b *statefulBubble) handleAsync(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case libraryLoadedMsg:
		b.stopLoading()
		cmd := b.setLibrary(msg.page)
		if b.state == loadingState {
			b.newState(libraryState)
		}
		return true, cmd

	case pageUpdateMsg:
		if msg.poller != b.listPoller {
			return true, nil
		}
		if msg.update.Err != nil {
			return true, tea.Batch(ui.Notify("Library refresh failed"), b.waitForPage(msg.poller))
		}
		return true, tea.Batch(b.setLibrary(msg.update.Page), b.waitForPage(msg.poller))

	case statusMsg:
		if msg.poller != b.poller {
			return true, nil
		}
		var notify tea.Cmd
		if msg.update.Err != nil {
			notify = ui.Notify("Status check failed, retrying")
		} else if b.selected != nil {
			rec := *b.selected
			rec.Status = msg.update.Status.Status
			b.selected = &rec
			b.failure = msg.update.Status.ErrorMessage
		}
		return true, tea.Batch(notify, b.waitForStatus(msg.poller))

	case reloadedMsg:
		if msg.poller != b.poller {
			return true, nil
		}
		b.selected = msg.record
		cmds := []tea.Cmd{b.waitForStatus(msg.poller)}
		if b.state == watchState && msg.record.Playable() {
			b.progressStatus = "Starting " + msg.record.Title
			cmds = append(cmds, b.startLoading(), b.startWatch(msg.record))
		}
		return true, tea.Batch(cmds...)

	case pollerDoneMsg:
		if msg.poller != b.poller {
			return true, nil
		}
		b.poller = nil
		if err := msg.poller.Err(); err != nil {
			return true, ui.Notify("Could not load the video: " + err.Error())
		}
		return true, nil

	case watchStartedMsg:
		b.stopLoading()
		if b.state != watchState || b.selected == nil || b.selected.ID != msg.watch.Record.ID || b.watch != nil {
			if err := msg.watch.Close(); err != nil {
				log.Warn(err)
			}
			return true, nil
		}
		b.watch = msg.watch
		b.pinned = playback.AutoLevel
		b.playback = msg.watch.Session.Snapshot()
		return true, b.waitForSession(msg.watch)

	case watchFailedMsg:
		b.stopLoading()
		if b.selected == nil || b.selected.ID != msg.record.ID {
			return true, nil
		}
		if b.state == watchState {
			b.previousState()
		}
		b.raiseError(msg.err)
		return true, nil

	case sessionMsg:
		if msg.watch != b.watch {
			return true, nil
		}
		b.playback = msg.state
		return true, b.waitForSession(msg.watch)

	case watchEndedMsg:
		if msg.watch != b.watch {
			return true, nil
		}
		b.stopWatching()
		if b.state == qualityState {
			b.previousState()
		}
		if b.state == watchState {
			b.previousState()
		}
		if msg.err != nil {
			b.raiseError(msg.err)
			return true, nil
		}
		return true, ui.Notify(icon.Get(icon.Success) + " Progress saved")

	case uploadProgressMsg:
		b.uploadState = msg.state
		return true, b.waitForUpload(msg.result)

	case uploadedMsg:
		b.uploading = false
		b.cancelUpload = nil
		b.uploadState = upload.State{}

		switch {
		case msg.err == nil:
			b.inputC.SetValue("")
			if b.state == uploadState {
				b.inputC.Blur()
				b.previousState()
			}
			return true, tea.Batch(
				ui.Notify(fmt.Sprintf("%s Uploaded %s", icon.Get(icon.Success), msg.record.Title)),
				b.loadLibrary(),
			)
		case errors.Is(msg.err, context.Canceled):
			return true, ui.Notify("Upload cancelled")
		default:
			log.Error(msg.err)
			return true, ui.Notify(icon.Get(icon.Fail) + " " + msg.err.Error())
		}

	case deletedMsg:
		b.libraryC.StopSpinner()
		return true, tea.Batch(
			ui.Notify(fmt.Sprintf("Deleted %s", msg.record.Title)),
			b.loadLibrary(),
		)
	}

	return false, nil
}

func (b *statefulBubble) updateLoading(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok && bubblesKey.Matches(msg, b.keymap.back) {
		if b.statesHistory.Len() == 0 {
			return tea.Quit
		}
		b.stopLoading()
		b.previousState()
	}
	return nil
}

// selectedRecord returns a copy of the highlighted record, detached from the page the poller may replace.
func (b *statefulBubble) selectedRecord() (*video.Record, bool) {
	item, ok := b.libraryC.SelectedItem().(*listItem)
	if !ok {
		return nil, false
	}
	rec, ok := item.internal.(*video.Record)
	if !ok {
		return nil, false
	}
	clone := *rec
	return &clone, true
}

func (b *statefulBubble) updateLibrary(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok && b.libraryC.FilterState() != list.Filtering {
		switch {
		case bubblesKey.Matches(msg, b.keymap.play):
			if rec, ok := b.selectedRecord(); ok {
				b.failure = ""
				b.newState(watchState)
				return b.enterWatch(rec)
			}
		case bubblesKey.Matches(msg, b.keymap.upload):
			b.newState(uploadState)
			if b.uploading {
				return nil
			}
			b.inputC.Reset()
			return tea.Batch(b.inputC.Focus(), textinput.Blink)
		case bubblesKey.Matches(msg, b.keymap.remove):
			if rec, ok := b.selectedRecord(); ok {
				b.selected = rec
				b.newState(confirmState)
				return nil
			}
		case bubblesKey.Matches(msg, b.keymap.refresh):
			return tea.Batch(b.libraryC.StartSpinner(), b.loadLibrary())
		}
	}

	b.libraryC, cmd = b.libraryC.Update(msg)
	return cmd
}

func (b *statefulBubble) updateWatch(msg tea.Msg) tea.Cmd {
	msgKey, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch {
	case bubblesKey.Matches(msgKey, b.keymap.back):
		b.stopLoading()
		b.stopWatching()
		b.previousState()
	case bubblesKey.Matches(msgKey, b.keymap.quality):
		if !b.playback.ShowQualitySelector() {
			return ui.Notify("Quality selection is not available for this player")
		}
		cmd := b.qualityC.SetItems(levelItems(b.playback, b.pinned))
		b.qualityC.Select(b.pinned + 1)
		b.newState(qualityState)
		return cmd
	case bubblesKey.Matches(msgKey, b.keymap.playPause):
		if b.watch == nil {
			return nil
		}
		if p, ok := b.watch.Element.(interface{ TogglePause() error }); ok {
			if err := p.TogglePause(); err != nil {
				return ui.Notify(err.Error())
			}
		}
	}

	return nil
}

func (b *statefulBubble) updateQuality(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.back):
			b.previousState()
			return nil
		case bubblesKey.Matches(msg, b.keymap.confirm):
			item, ok := b.qualityC.SelectedItem().(*listItem)
			b.previousState()
			if !ok || b.watch == nil {
				return nil
			}

			level := playback.AutoLevel
			if l, ok := item.internal.(playback.Level); ok {
				level = l.Index
			}
			if err := b.watch.Session.SetQualityLevel(level); err != nil {
				return ui.Notify(err.Error())
			}
			b.pinned = level
			return ui.Notify("Quality: " + item.FilterValue())
		}
	}

	b.qualityC, cmd = b.qualityC.Update(msg)
	return cmd
}

func (b *statefulBubble) updateUpload(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.back):
			if b.uploading {
				b.cancelUpload()
				return nil
			}
			b.inputC.Blur()
			b.previousState()
			return nil
		case bubblesKey.Matches(msg, b.keymap.confirm):
			if b.uploading {
				return ui.Notify(upload.ErrTransferInFlight.Error())
			}
			path := strings.TrimSpace(b.inputC.Value())
			if path == "" {
				return nil
			}
			return b.startUpload(path)
		}
	}

	if !b.uploading {
		b.inputC, cmd = b.inputC.Update(msg)
	}
	return cmd
}

func (b *statefulBubble) updateConfirm(msg tea.Msg) tea.Cmd {
	msgKey, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch {
	case bubblesKey.Matches(msgKey, b.keymap.yes):
		rec := b.selected
		b.previousState()
		if rec == nil {
			return nil
		}
		return tea.Batch(b.libraryC.StartSpinner(), b.deleteVideo(rec))
	case bubblesKey.Matches(msgKey, b.keymap.no), bubblesKey.Matches(msgKey, b.keymap.back):
		b.previousState()
	}

	return nil
}

func (b *statefulBubble) updateError(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case bubblesKey.Matches(msg, b.keymap.quit):
			return tea.Quit
		case bubblesKey.Matches(msg, b.keymap.back):
			b.previousState()
		}
	}
	return nil
}
