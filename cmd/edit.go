package cmd

import (
	"errors"
	"os"

	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().StringP("title", "t", "", "New title")
	editCmd.Flags().StringP("description", "d", "", "New description, empty to clear it")
	editCmd.SetOut(os.Stdout)
}

// editCmd changes the metadata of a video.
var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title or description of a video",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var patch video.Patch
		if cmd.Flags().Changed("title") {
			title := lo.Must(cmd.Flags().GetString("title"))
			if title == "" {
				handleErr(errors.New("title cannot be empty"))
			}
			patch.Title = mo.Some(title)
		}
		if cmd.Flags().Changed("description") {
			patch.Description = mo.Some(lo.Must(cmd.Flags().GetString("description")))
		}
		if patch.Empty() {
			handleErr(errors.New("nothing to change, set --title or --description"))
		}

		client, err := api.FromConfig()
		handleErr(err)

		rec, err := client.Update(cmd.Context(), args[0], patch)
		handleErr(err)

		cmd.Printf(
			"%s updated %s\n",
			style.Fg(color.Green)(icon.Get(icon.Success)),
			style.Fg(color.Purple)(rec.Title),
		)
	},
}
