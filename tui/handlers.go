package tui

import (
	"context"
	"sort"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/internal/watch"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/upload"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
)

type (
	libraryLoadedMsg struct {
		page *video.Page
	}

	pageUpdateMsg struct {
		poller *reconcile.ListPoller
		update reconcile.PageUpdate
	}

	statusMsg struct {
		poller *reconcile.Poller
		update reconcile.Update
	}

	reloadedMsg struct {
		poller *reconcile.Poller
		record *video.Record
	}

	pollerDoneMsg struct {
		poller *reconcile.Poller
	}

	watchStartedMsg struct {
		watch *watch.Watch
	}

	watchFailedMsg struct {
		record *video.Record
		err    error
	}

	sessionMsg struct {
		watch *watch.Watch
		state playback.State
	}

	watchEndedMsg struct {
		watch *watch.Watch
		err   error
	}

	uploadProgressMsg struct {
		state  upload.State
		result <-chan uploadedMsg
	}

	uploadedMsg struct {
		record *video.Record
		err    error
	}

	deletedMsg struct {
		record *video.Record
	}
)

// offer replaces any unread value of a capacity-1 channel with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// fuzzyFilter ranks list items with fuzzysearch instead of the list's built-in matcher.
func fuzzyFilter(term string, targets []string) []list.Rank {
	ranks := fuzzy.RankFindNormalizedFold(term, targets)
	sort.Sort(ranks)

	return lo.Map(ranks, func(r fuzzy.Rank, _ int) list.Rank {
		return list.Rank{Index: r.OriginalIndex}
	})
}

func (b *statefulBubble) loadLibrary() tea.Cmd {
	opts := b.listOptions()
	return func() tea.Msg {
		page, err := b.client.List(b.ctx, opts)
		if err != nil {
			log.Error(err)
			return err
		}

		log.Infof("library has %s", util.Quantify(page.Total, "video", "videos"))
		return libraryLoadedMsg{page: page}
	}
}

// setLibrary shows page and hands it to the list poller, starting one when needed.
func (b *statefulBubble) setLibrary(page *video.Page) tea.Cmd {
	b.page = page

	items := make([]list.Item, len(page.Videos))
	for i := range page.Videos {
		items[i] = &listItem{internal: &page.Videos[i]}
	}
	cmd := b.libraryC.SetItems(items)

	if b.listPoller == nil {
		opts := b.listOptions()
		b.listPoller = reconcile.WatchList(b.ctx, page, func(ctx context.Context) (*video.Page, error) {
			return b.client.List(ctx, opts)
		}, reconcile.Options{})
		return tea.Batch(cmd, b.waitForPage(b.listPoller))
	}

	b.listPoller.SetVisible(page)
	return cmd
}

func (b *statefulBubble) waitForPage(lp *reconcile.ListPoller) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-lp.Updates()
		if !ok {
			return nil
		}
		return pageUpdateMsg{poller: lp, update: update}
	}
}

// enterWatch plays rec when it is ready, otherwise follows its processing until it is.
func (b *statefulBubble) enterWatch(rec *video.Record) tea.Cmd {
	b.stopWatching()
	b.selected = rec

	if rec.Playable() {
		b.progressStatus = "Starting " + rec.Title
		return tea.Batch(b.startLoading(), b.startWatch(rec))
	}

	b.poller = reconcile.Watch(b.ctx, b.client, rec.ID, rec.Status, reconcile.Options{})
	return tea.Batch(b.spinnerC.Tick, b.waitForStatus(b.poller))
}

func (b *statefulBubble) waitForStatus(p *reconcile.Poller) tea.Cmd {
	return func() tea.Msg {
		if update, ok := <-p.Updates(); ok {
			return statusMsg{poller: p, update: update}
		}
		if rec, ok := <-p.Reloaded(); ok {
			return reloadedMsg{poller: p, record: rec}
		}
		return pollerDoneMsg{poller: p}
	}
}

func (b *statefulBubble) startWatch(rec *video.Record) tea.Cmd {
	return func() tea.Msg {
		w, err := watch.Start(b.ctx, rec)
		if err != nil {
			log.Error(err)
			return watchFailedMsg{record: rec, err: err}
		}
		return watchStartedMsg{watch: w}
	}
}

func (b *statefulBubble) waitForSession(w *watch.Watch) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-w.Session.Updates():
			return sessionMsg{watch: w, state: w.Session.Snapshot()}
		case err := <-w.Session.Terminal():
			return watchEndedMsg{watch: w, err: err}
		case <-w.Element.Wait():
			return watchEndedMsg{watch: w}
		}
	}
}

func (b *statefulBubble) startUpload(path string) tea.Cmd {
	ctx, cancel := context.WithCancel(b.ctx)
	b.cancelUpload = cancel
	b.uploading = true
	b.uploadState = upload.State{}

	// drop what the previous transfer left behind
	select {
	case <-b.uploadProgress:
	default:
	}

	result := make(chan uploadedMsg, 1)
	go func() {
		defer cancel()

		src, err := filesystem.OpenUpload(path)
		if err != nil {
			result <- uploadedMsg{err: err}
			return
		}
		defer util.Ignore(src.Close)

		rec, err := b.tracker.Start(ctx, src, upload.Metadata{Title: util.FileStem(path)})
		result <- uploadedMsg{record: rec, err: err}
	}()

	return b.waitForUpload(result)
}

func (b *statefulBubble) waitForUpload(result <-chan uploadedMsg) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-b.uploadProgress:
			return uploadProgressMsg{state: s, result: result}
		case msg := <-result:
			return msg
		}
	}
}

func (b *statefulBubble) deleteVideo(rec *video.Record) tea.Cmd {
	return func() tea.Msg {
		if err := b.client.Delete(b.ctx, rec.ID); err != nil {
			log.Error(err)
			return err
		}
		if err := history.Remove(rec.ID); err != nil {
			log.Warnf("forget history of %s: %s", rec.ID, err)
		}
		return deletedMsg{record: rec}
	}
}

// levelItems lists the automatic choice followed by every level, marking the active one.
func levelItems(st playback.State, pinned int) []list.Item {
	items := make([]list.Item, 0, len(st.Levels)+1)
	items = append(items, &listItem{internal: "Auto", marked: pinned == playback.AutoLevel})
	for _, l := range st.Levels {
		items = append(items, &listItem{internal: l, marked: pinned == l.Index})
	}
	return items
}
