package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/internal/watch"
	"github.com/reelcast/reelcast/open"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().BoolP("browser", "b", false, "Open the stream with the default handler instead of the configured player")
	playCmd.SetOut(os.Stdout)
}

// playCmd streams a video in the configured player, waiting for processing first when needed.
var playCmd = &cobra.Command{
	Use:     "play <id>",
	Aliases: []string{"watch"},
	Short:   "Stream a video in the configured player",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		browser := lo.Must(cmd.Flags().GetBool("browser"))
		if !browser {
			checkPlayer()
		}

		client, err := api.FromConfig()
		handleErr(err)

		rec, err := client.Get(cmd.Context(), args[0])
		handleErr(err)

		if !rec.Status.IsTerminal() {
			printStatus(cmd.ErrOrStderr(), video.StatusProjection{Status: rec.Status})
			rec, err = waitUntilTerminal(cmd, client, rec.ID, rec.Status)
			handleErr(err)
		}
		if !rec.Playable() {
			handleErr(fmt.Errorf("%s is %s and cannot be played", rec.Title, rec.Status))
		}

		if browser {
			handleErr(open.Start(rec.Stream()))
			cmd.Printf("%s Opened %s\n", icon.Get(icon.Play), style.Fg(color.Purple)(rec.Title))
			return
		}

		w, err := watch.Start(cmd.Context(), rec)
		handleErr(err)

		st := w.Session.Snapshot()
		cmd.Printf(
			"%s Playing %s %s\n",
			icon.Get(icon.Play),
			style.Fg(color.Purple)(rec.Title),
			style.Faint(fmt.Sprintf("(%s, %s)", w.Element.Name(), st.Mode)),
		)

		done := make(chan error, 1)
		go func() {
			done <- w.Wait(cmd.Context())
		}()

		erase := func() {}
		for {
			select {
			case <-w.Session.Updates():
				erase()
				erase = util.PrintErasable(describePlayback(w.Session.Snapshot()))
			case err := <-done:
				erase()
				closeErr := w.Close()
				if errors.Is(err, context.Canceled) {
					err = nil
				}
				handleErr(errors.Join(err, closeErr))
				cmd.Printf("%s Progress saved\n", style.Fg(color.Green)(icon.Get(icon.Success)))
				return
			}
		}
	},
}

// describePlayback renders the live state of a session on one line.
func describePlayback(st playback.State) string {
	line := style.Fg(color.Green)("playing")
	if st.Buffering {
		line = style.Fg(color.Yellow)(icon.Get(icon.Buffering) + " buffering")
	}

	if st.ShowQualitySelector() && st.CurrentLevel >= 0 && st.CurrentLevel < len(st.Levels) {
		line += " " + style.Faint(st.Levels[st.CurrentLevel].String())
	}
	return line
}
