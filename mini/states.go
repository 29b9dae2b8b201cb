package mini

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/internal/watch"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/upload"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

type state int

const (
	librarySelectState state = iota + 1
	actionSelectState
	uploadState
	historySelectState
	quitState
)

func (m *mini) listOptions() api.ListOptions {
	opts := api.ListOptions{Limit: viper.GetInt(key.APIPageSize)}
	if m.options.Status != "" {
		opts.Status = mo.Some(video.Status(m.options.Status))
	}
	return opts
}

func recordLabel(rec *video.Record) string {
	return fmt.Sprintf("%s  [%s] %s", rec.Title, rec.Status, video.FormatDuration(rec.DurationSeconds))
}

func (m *mini) handleLibrarySelectState() error {
	erase := progress("Fetching library..")
	page, err := m.client.List(m.ctx, m.listOptions())
	erase()
	if err != nil {
		return err
	}
	m.page = page

	items := make([]string, len(page.Videos))
	for i := range page.Videos {
		items[i] = recordLabel(&page.Videos[i])
	}

	b, i, err := menu(
		fmt.Sprintf("Library (%s)", util.Quantify(page.Total, "video", "videos")),
		items,
		uploadFile, refreshLibrary, showHistory, quit,
	)
	if err != nil {
		return err
	}

	switch b {
	case uploadFile:
		m.newState(uploadState)
	case refreshLibrary:
	case showHistory:
		m.newState(historySelectState)
	case quit:
		m.newState(quitState)
	default:
		rec := page.Videos[i]
		m.selected = &rec
		m.newState(actionSelectState)
	}

	return nil
}

// actionsFor lists what can be done with rec in its current status.
func actionsFor(rec *video.Record) []*bind {
	var binds []*bind
	if rec.Playable() {
		binds = append(binds, playVideo)
	}
	if !rec.Status.IsTerminal() {
		binds = append(binds, waitProcessing)
	}
	return append(binds, deleteVideo, back, quit)
}

func (m *mini) handleActionSelectState() error {
	rec := m.selected
	title(rec.Title)
	fmt.Printf("%s %s\n\n", style.Status(rec.Status), style.Faint(rec.DescriptionOr("No description")))

	b, _, err := menu("Action", nil, actionsFor(rec)...)
	if err != nil {
		return err
	}

	switch b {
	case playVideo:
		return m.play(rec)
	case waitProcessing:
		return m.wait(rec)
	case deleteVideo:
		return m.remove(rec)
	case back:
		m.previousState()
	case quit:
		m.newState(quitState)
	}

	return nil
}

func (m *mini) play(rec *video.Record) error {
	erase := progress("Starting player..")
	w, err := watch.Start(m.ctx, rec)
	erase()
	if err != nil {
		fail(err.Error())
		return nil
	}

	fmt.Printf("%s Playing %s %s\n", icon.Get(icon.Play), rec.Title, style.Faint("("+w.Session.Snapshot().Mode.String()+")"))

	err = w.Wait(m.ctx)
	if closeErr := w.Close(); closeErr != nil {
		log.Warn(closeErr)
	}

	switch {
	case errors.Is(err, context.Canceled):
		m.newState(quitState)
	case err != nil:
		fail(err.Error())
	default:
		success("Progress saved")
	}
	return nil
}

// wait follows rec until processing ends, replacing the selection with the result.
func (m *mini) wait(rec *video.Record) error {
	poller := reconcile.Watch(m.ctx, m.client, rec.ID, rec.Status, reconcile.Options{})
	defer poller.Stop()

	erase := progress("Waiting for processing..")
	for update := range poller.Updates() {
		if update.Err != nil {
			continue
		}

		erase()
		st := update.Status
		fmt.Printf("%s %s\n", icon.Get(icon.ForStatus(st.Status)), style.Status(st.Status))

		changed := *m.selected
		changed.Status = st.Status
		m.selected = &changed

		if st.Status == video.StatusFailed {
			fail(lo.Ternary(st.ErrorMessage != "", st.ErrorMessage, "Processing failed"))
		}
		erase = progress("Waiting for processing..")
	}
	erase()

	if reloaded, ok := <-poller.Reloaded(); ok {
		m.selected = reloaded
		success(reloaded.Title + " is ready")
	}

	if errors.Is(m.ctx.Err(), context.Canceled) {
		m.newState(quitState)
	}
	return nil
}

func (m *mini) remove(rec *video.Record) error {
	confirm := survey.Confirm{
		Message: fmt.Sprintf("Delete %s?", rec.Title),
		Default: false,
	}
	var response bool
	if err := survey.AskOne(&confirm, &response); err != nil {
		return err
	}
	if !response {
		return nil
	}

	if err := m.client.Delete(m.ctx, rec.ID); err != nil {
		fail(err.Error())
		return nil
	}
	if err := history.Remove(rec.ID); err != nil {
		log.Warnf("forget history of %s: %s", rec.ID, err)
	}

	success("Deleted " + rec.Title)
	m.selected = nil
	m.previousState()
	return nil
}

// suggestFiles completes paths on the active filesystem backend.
func suggestFiles(toComplete string) []string {
	matches, err := afero.Glob(filesystem.API(), toComplete+"*")
	if err != nil {
		return nil
	}
	return matches
}

func (m *mini) handleUploadState() error {
	title("Upload")

	var path string
	input := survey.Input{
		Message: "File:",
		Suggest: suggestFiles,
	}
	if err := survey.AskOne(&input, &path, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	src, err := filesystem.OpenUpload(path)
	if err != nil {
		fail(err.Error())
		m.previousState()
		return nil
	}
	defer util.Ignore(src.Close)

	meta := upload.Metadata{Title: util.FileStem(path)}
	titleInput := survey.Input{
		Message: "Title:",
		Default: meta.Title,
	}
	if err := survey.AskOne(&titleInput, &meta.Title, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	erase := func() {}
	tracker := upload.NewTracker(
		upload.NewHTTPChannel(m.client),
		upload.WithLimit(viper.GetInt64(key.UploadMaxSize)),
		upload.WithObserver(func(s upload.State) {
			erase()
			erase = util.PrintErasable(fmt.Sprintf("%s %s", icon.Get(icon.Upload), s))
		}),
	)

	rec, err := tracker.Start(m.ctx, src, meta)
	erase()
	m.previousState()

	if err != nil {
		fail(err.Error())
		return nil
	}

	success(fmt.Sprintf("Uploaded %s, processing has started", rec.Title))
	return nil
}

// historyEntries returns the saved entries, most recently watched first.
func historyEntries() ([]*history.Entry, error) {
	saved, err := history.Get()
	if err != nil {
		return nil, err
	}

	entries := lo.Values(saved)
	slices.SortFunc(entries, func(a, b *history.Entry) int {
		return b.WatchedAt.Compare(a.WatchedAt)
	})
	return entries, nil
}

func (m *mini) handleHistorySelectState() error {
	entries, err := historyEntries()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fail("No watch history")
		m.newState(librarySelectState)
		return nil
	}

	labels := lo.Map(entries, func(e *history.Entry, _ int) string {
		return e.String()
	})

	b, i, err := menu("History", labels, showLibrary, quit)
	if err != nil {
		return err
	}

	switch b {
	case showLibrary:
		m.newState(librarySelectState)
	case quit:
		m.newState(quitState)
	default:
		id := entries[i].VideoID

		erase := progress("Fetching video..")
		rec, err := m.client.Get(m.ctx, id)
		erase()

		switch {
		case api.IsNotFound(err):
			fail("The video no longer exists")
			if err := history.Remove(id); err != nil {
				log.Warn(err)
			}
		case err != nil:
			return err
		default:
			m.selected = rec
			m.newState(actionSelectState)
		}
	}

	return nil
}
