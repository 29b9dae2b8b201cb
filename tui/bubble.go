package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	bubblesKey "github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/constant"
	"github.com/reelcast/reelcast/internal/ui"
	"github.com/reelcast/reelcast/internal/watch"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/upload"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

// statefulBubble encapsulates the application state, its component models and the background workers it owns.
type statefulBubble struct {
	state         state
	statesHistory util.Stack[state]
	loading       bool

	keymap *statefulKeymap

	// components
	spinnerC  spinner.Model
	libraryC  list.Model
	qualityC  list.Model
	inputC    textinput.Model
	progressC progress.Model
	helpC     help.Model

	ctx     context.Context
	client  *api.Client
	options *Options

	page       *video.Page
	listPoller *reconcile.ListPoller

	selected *video.Record
	poller   *reconcile.Poller
	failure  string
	watch    *watch.Watch
	playback playback.State
	pinned   int

	tracker        *upload.Tracker
	uploadProgress chan upload.State
	uploadState    upload.State
	uploading      bool
	cancelUpload   context.CancelFunc

	progressStatus string
	lastError      error

	width, height int
	notifier      *ui.Model
}

// raiseError dispatches an error and transitions the application to the failure view.
func (b *statefulBubble) raiseError(err error) {
	b.lastError = err
	b.newState(errorState)
}

// setState performs a synchronous transition of both the application workflow and its associated keymap.
func (b *statefulBubble) setState(s state) {
	b.state = s
	b.keymap.setState(s)
}

// newState transitions to s, recording the previous state in the navigation history when appropriate.
func (b *statefulBubble) newState(s state) {
	if b.state == s {
		return
	}

	// Do not push these states to history
	if !lo.Contains([]state{
		loadingState,
		errorState,
		confirmState,
		qualityState,
	}, b.state) {
		b.statesHistory.Push(b.state)
	}

	b.setState(s)
}

// previousState restores the application to its immediate predecessor in the navigation stack.
func (b *statefulBubble) previousState() {
	if b.statesHistory.Len() > 0 {
		s := b.statesHistory.Pop()
		b.setState(s)
	}
}

// resize propagates terminal dimension changes to all child component models.
func (b *statefulBubble) resize(width, height int) {
	x, y := paddingStyle.GetFrameSize()
	xx, yy := listExtraPaddingStyle.GetFrameSize()

	styledWidth := width - x
	styledHeight := height - y

	listWidth := width - xx
	listHeight := height - yy

	b.libraryC.SetSize(listWidth, listHeight)
	b.libraryC.Help.Width = listWidth

	b.qualityC.SetSize(listWidth, listHeight)
	b.qualityC.Help.Width = listWidth

	b.progressC.Width = listWidth
	b.inputC.Width = listWidth

	b.width = styledWidth
	b.height = styledHeight
	b.helpC.Width = listWidth
}

func (b *statefulBubble) startLoading() tea.Cmd {
	b.loading = true
	return tea.Batch(b.spinnerC.Tick, b.libraryC.StartSpinner())
}

func (b *statefulBubble) stopLoading() {
	b.loading = false
	b.libraryC.StopSpinner()
}

// stopWatching ends the poller and the player of the selected record, saving watch progress.
func (b *statefulBubble) stopWatching() {
	if b.poller != nil {
		b.poller.Stop()
		b.poller = nil
	}
	if b.watch != nil {
		if err := b.watch.Close(); err != nil {
			b.lastError = err
		}
		b.watch = nil
	}
	b.playback = playback.State{}
	b.pinned = playback.AutoLevel
}

// release stops every background worker the bubble owns.
func (b *statefulBubble) release() {
	b.stopWatching()
	if b.cancelUpload != nil {
		b.cancelUpload()
	}
	if b.listPoller != nil {
		b.listPoller.Stop()
		b.listPoller = nil
	}
}

func (b *statefulBubble) listOptions() api.ListOptions {
	opts := api.ListOptions{Limit: viper.GetInt(key.APIPageSize)}
	if b.options != nil && b.options.Status != "" {
		opts.Status = mo.Some(video.Status(b.options.Status))
	}
	return opts
}

// newBubble performs a complete initialization of the application's primary UI model.
func newBubble(ctx context.Context, client *api.Client, options *Options) *statefulBubble {
	keymap := newStatefulKeymap()
	bubble := statefulBubble{
		statesHistory:  util.Stack[state]{},
		keymap:         keymap,
		ctx:            ctx,
		client:         client,
		options:        options,
		pinned:         playback.AutoLevel,
		uploadProgress: make(chan upload.State, 1),
		notifier:       &ui.Model{},
	}

	bubble.tracker = upload.NewTracker(
		upload.NewHTTPChannel(client),
		upload.WithLimit(viper.GetInt64(key.UploadMaxSize)),
		upload.WithObserver(func(s upload.State) {
			offer(bubble.uploadProgress, s)
		}),
	)

	type listOptions struct {
		TitleStyle mo.Option[lipgloss.Style]
	}

	makeList := func(title string, description bool, options *listOptions) list.Model {
		delegate := list.NewDefaultDelegate()
		delegate.SetSpacing(viper.GetInt(key.TUIItemSpacing))
		delegate.ShowDescription = description
		delegate.Styles.SelectedTitle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(style.AccentColor).
			Foreground(style.AccentColor).
			Padding(0, 0, 0, 1)
		delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(lipgloss.Color("7"))
		delegate.Styles.SelectedDesc = delegate.Styles.SelectedTitle

		listC := list.New([]list.Item{}, delegate, 0, 0)
		listC.KeyMap = bubble.keymap.forList()
		listC.AdditionalShortHelpKeys = bubble.keymap.ShortHelp
		listC.AdditionalFullHelpKeys = func() []bubblesKey.Binding {
			return bubble.keymap.FullHelp()[0]
		}
		listC.Title = title
		listC.Styles.NoItems = paddingStyle
		if titleStyle, ok := options.TitleStyle.Get(); ok {
			listC.Styles.Title = titleStyle
		}
		listC.StatusMessageLifetime = time.Hour * 999
		listC.SetShowPagination(false)

		return listC
	}

	bubble.helpC = help.New()

	bubble.spinnerC = spinner.New()
	bubble.spinnerC.Spinner = spinner.Dot
	bubble.spinnerC.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bubble.inputC = textinput.New()
	bubble.inputC.Placeholder = fmt.Sprintf("Path to a video file (%s v%s)", constant.Reelcast, constant.Version)
	bubble.inputC.Prompt = "File: "

	bubble.progressC = progress.New(progress.WithDefaultGradient())

	bubble.libraryC = makeList("Library", true, &listOptions{
		TitleStyle: mo.Some(
			lipgloss.NewStyle().Foreground(style.Base).Background(style.AccentColor).Padding(0, 1),
		),
	})
	bubble.libraryC.SetStatusBarItemName("video", "videos")
	bubble.libraryC.Filter = fuzzyFilter

	bubble.qualityC = makeList("Quality", true, &listOptions{
		TitleStyle: mo.Some(
			lipgloss.NewStyle().Foreground(style.Base).Background(style.Lavender).Padding(0, 1),
		),
	})
	bubble.qualityC.SetStatusBarItemName("level", "levels")
	bubble.qualityC.SetFilteringEnabled(false)

	if w, h, err := util.TerminalSize(); err == nil {
		bubble.resize(w, h)
	}

	return &bubble
}
