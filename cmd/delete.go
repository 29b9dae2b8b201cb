package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	deleteCmd.SetOut(os.Stdout)
}

// deleteCmd removes a video and its renditions from the service.
var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a video and all of its renditions",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := api.FromConfig()
		handleErr(err)

		rec, err := client.Get(cmd.Context(), args[0])
		handleErr(err)

		if !lo.Must(cmd.Flags().GetBool("yes")) {
			confirm := survey.Confirm{
				Message: fmt.Sprintf("Delete %s?", rec.Title),
				Default: false,
			}
			var response bool
			handleErr(survey.AskOne(&confirm, &response))

			if !response {
				return
			}
		}

		handleErr(client.Delete(cmd.Context(), rec.ID))
		if err := history.Remove(rec.ID); err != nil {
			log.Warnf("forget history of %s: %s", rec.ID, err)
		}

		cmd.Printf(
			"%s deleted %s\n",
			style.Fg(color.Green)(icon.Get(icon.Success)),
			style.Fg(color.Purple)(rec.Title),
		)
	},
}
