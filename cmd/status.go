package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("wait", "w", false, "Follow processing until the video is ready or failed")
	statusCmd.SetOut(os.Stdout)
}

// statusCmd prints the processing status of a video, optionally following it to a terminal state.
var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Display the processing status of a video",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := api.FromConfig()
		handleErr(err)

		st, err := client.Status(cmd.Context(), args[0])
		handleErr(err)

		printStatus(cmd.OutOrStdout(), *st)
		if !lo.Must(cmd.Flags().GetBool("wait")) || st.Status.IsTerminal() {
			handleErr(statusErr(*st))
			return
		}

		rec, err := waitUntilTerminal(cmd, client, args[0], st.Status)
		handleErr(err)
		handleErr(renderRecord(cmd, rec))
	},
}

func printStatus(out io.Writer, st video.StatusProjection) {
	fmt.Fprintf(out, "%s %s\n", icon.Get(icon.ForStatus(st.Status)), style.Status(st.Status))
}

func statusErr(st video.StatusProjection) error {
	if st.Status != video.StatusFailed {
		return nil
	}
	if st.ErrorMessage == "" {
		return errors.New("processing failed")
	}
	return fmt.Errorf("processing failed: %s", st.ErrorMessage)
}

// waitUntilTerminal polls id until it is ready and returns the reloaded record.
// Status changes are reported on stderr.
func waitUntilTerminal(cmd *cobra.Command, client *api.Client, id string, initial video.Status) (*video.Record, error) {
	poller := reconcile.Watch(cmd.Context(), client, id, initial, reconcile.Options{})
	defer poller.Stop()

	erase := util.PrintErasable(fmt.Sprintf("%s Waiting for processing...", icon.Get(icon.Progress)))
	last := initial
	for update := range poller.Updates() {
		if update.Err != nil {
			continue
		}
		if update.Status.Status == last {
			continue
		}

		erase()
		last = update.Status.Status
		printStatus(cmd.ErrOrStderr(), update.Status)
		if err := statusErr(update.Status); err != nil {
			return nil, err
		}
		erase = util.PrintErasable(fmt.Sprintf("%s Waiting for processing...", icon.Get(icon.Progress)))
	}
	erase()

	if rec, ok := <-poller.Reloaded(); ok {
		return rec, nil
	}

	if err := poller.Err(); err != nil {
		return nil, err
	}
	if err := statusErr(poller.Last()); err != nil {
		return nil, err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stopped before the video was ready")
}
