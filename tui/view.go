package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wrap"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/video"
	"github.com/spf13/viper"
)

var (
	listExtraPaddingStyle = lipgloss.NewStyle().Padding(1, 2, 1, 0)
	paddingStyle          = lipgloss.NewStyle().Padding(1, 2)
)

func (b *statefulBubble) View() string {
	var output string

	switch b.state {
	case loadingState:
		output = b.viewLoading()
	case libraryState:
		output = listExtraPaddingStyle.Render(b.libraryC.View())
	case watchState:
		output = b.viewWatch()
	case qualityState:
		output = listExtraPaddingStyle.Render(b.qualityC.View())
	case uploadState:
		output = b.viewUpload()
	case confirmState:
		output = b.viewConfirm()
	case errorState:
		output = b.viewError()
	default:
		output = "Unknown state"
	}

	return b.notifier.View(output)
}

func (b *statefulBubble) viewLoading() string {
	return b.renderLines(
		true,
		[]string{
			style.Title("Loading"),
			"",
			b.spinnerC.View() + " " + b.progressStatus,
		},
	)
}

func (b *statefulBubble) viewWatch() string {
	rec := b.selected
	if rec == nil {
		return b.renderLines(true, []string{style.Title("Watch")})
	}

	truncate := style.Truncate(b.width)
	lines := []string{
		style.Title("Watch"),
		"",
		truncate(icon.Get(icon.Play) + " " + style.Fg(color.Purple)(rec.Title)),
		truncate(style.Faint(rec.DescriptionOr("No description"))),
		"",
	}

	switch {
	case b.watch != nil:
		lines = append(lines, b.playbackLines()...)
	case b.loading:
		lines = append(lines, truncate(b.spinnerC.View()+" "+b.progressStatus))
	case rec.Status == video.StatusFailed:
		reason := b.failure
		if reason == "" {
			reason = "Processing failed"
		}
		lines = append(lines,
			style.Status(rec.Status),
			"",
			wrap.String(icon.Get(icon.Fail)+" "+reason, b.width),
		)
	case b.poller != nil:
		lines = append(lines, truncate(fmt.Sprintf(
			"%s %s %s",
			b.spinnerC.View(),
			style.Status(rec.Status),
			style.Faint("waiting for processing to finish"),
		)))
	default:
		lines = append(lines, style.Status(rec.Status))
	}

	return b.renderLines(true, lines)
}

func (b *statefulBubble) playbackLines() []string {
	st := b.playback

	state := style.Fg(color.Green)("playing")
	if st.Buffering {
		state = style.Fg(color.Yellow)(icon.Get(icon.Buffering) + " buffering")
	}

	lines := []string{
		fmt.Sprintf("%s %s", style.Faint("Player"), b.watch.Element.Name()),
		fmt.Sprintf("%s %s", style.Faint("Mode  "), st.Mode),
		fmt.Sprintf("%s %s", style.Faint("State "), state),
	}

	if st.ShowQualitySelector() {
		lines = append(lines, fmt.Sprintf("%s %s", style.Faint("Level "), levelLabel(st, b.pinned)))
	}

	return lines
}

// levelLabel names the level being played, prefixed with Auto unless the user pinned one.
func levelLabel(st playback.State, pinned int) string {
	current := "unknown"
	if st.CurrentLevel >= 0 && st.CurrentLevel < len(st.Levels) {
		current = st.Levels[st.CurrentLevel].String()
	}

	if pinned == playback.AutoLevel {
		return fmt.Sprintf("Auto (%s)", current)
	}
	return current
}

func (b *statefulBubble) viewUpload() string {
	lines := []string{
		style.Title("Upload"),
		"",
		b.inputC.View(),
		style.Faint("Up to " + video.FormatFileSize(viper.GetInt64(key.UploadMaxSize))),
		"",
	}

	if b.uploading {
		s := b.uploadState
		lines = append(lines,
			b.progressC.ViewAs(float64(s.Percent)/100),
			"",
			fmt.Sprintf(
				"%s %s / %s",
				icon.Get(icon.Upload),
				humanize.IBytes(uint64(s.Sent)),
				humanize.IBytes(uint64(s.Total)),
			),
		)
	}

	return b.renderLines(true, lines)
}

func (b *statefulBubble) viewConfirm() string {
	var title string
	if b.selected != nil {
		title = b.selected.Title
	}

	return b.renderLines(
		true,
		[]string{
			style.ErrorTitle("Delete"),
			"",
			fmt.Sprintf("%s Delete %s?", icon.Get(icon.Question), style.Fg(color.Purple)(title)),
			style.Faint("The video and all of its renditions are removed from the service."),
		},
	)
}

func (b *statefulBubble) viewError() string {
	errorStyle := lipgloss.NewStyle().Foreground(style.ErrorColor).Bold(true)
	errorBody := errorStyle.Render(b.lastError.Error())
	errorMsg := wrap.String(errorBody, b.width)
	return b.renderLines(
		true,
		[]string{
			style.ErrorTitle("Error"),
			"",
			icon.Get(icon.Fail) + " An error occurred:",
			"",
			errorMsg,
		},
	)
}

func (b *statefulBubble) renderLines(addHelp bool, lines []string) string {
	h := len(lines)
	l := strings.Join(lines, "\n")
	if addHelp {
		if b.height > h {
			l += strings.Repeat("\n", b.height-h)
		}
		l += b.helpC.View(b.keymap)
	}

	return paddingStyle.Render(l)
}
