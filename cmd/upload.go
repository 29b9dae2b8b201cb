package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/upload"
	"github.com/reelcast/reelcast/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringP("title", "t", "", "Title of the video (defaults to the file name)")
	uploadCmd.Flags().StringP("description", "d", "", "Description of the video")
	uploadCmd.Flags().BoolP("wait", "w", false, "Wait until the service finished processing the video")
	uploadCmd.Flags().BoolP("json", "j", false, "Print the created record as JSON")
	uploadCmd.SetOut(os.Stdout)
}

// uploadCmd transfers a local file to the video service.
var uploadCmd = &cobra.Command{
	Use:     "upload <file>",
	Short:   "Upload a video file",
	Example: "  reelcast upload ./holiday.mp4 --title Holiday --wait",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		src, err := filesystem.OpenUpload(path)
		handleErr(err)
		defer util.Ignore(src.Close)

		meta := upload.Metadata{Title: lo.Must(cmd.Flags().GetString("title"))}
		if cmd.Flags().Changed("description") {
			meta.Description = lo.ToPtr(lo.Must(cmd.Flags().GetString("description")))
		}

		if meta.Title == "" {
			meta.Title = util.FileStem(path)

			if term.IsTerminal(int(os.Stdin.Fd())) {
				input := survey.Input{
					Message: "Title:",
					Default: meta.Title,
				}
				handleErr(survey.AskOne(&input, &meta.Title, survey.WithValidator(survey.Required)))
			}
		}

		client, err := api.FromConfig()
		handleErr(err)

		erase := func() {}
		tracker := upload.NewTracker(
			upload.NewHTTPChannel(client),
			upload.WithLimit(viper.GetInt64(key.UploadMaxSize)),
			upload.WithObserver(func(s upload.State) {
				erase()
				if s.Phase == upload.PhaseUploading {
					erase = util.PrintErasable(fmt.Sprintf("%s Uploading %s", icon.Get(icon.Upload), s))
				} else {
					erase = func() {}
				}
			}),
		)

		rec, err := tracker.Start(cmd.Context(), src, meta)
		erase()
		handleErr(err)

		if !lo.Must(cmd.Flags().GetBool("json")) {
			cmd.Printf(
				"%s uploaded %s as %s\n",
				style.Fg(color.Green)(icon.Get(icon.Success)),
				style.Fg(color.Purple)(rec.Title),
				style.Fg(color.Yellow)(rec.ID),
			)
		}

		if lo.Must(cmd.Flags().GetBool("wait")) && !rec.Status.IsTerminal() {
			rec, err = waitUntilTerminal(cmd, client, rec.ID, rec.Status)
			handleErr(err)
		}

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(rec))
		}
	},
}
