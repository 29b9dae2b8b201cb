package cmd

import (
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/mini"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(miniCmd)

	miniCmd.Flags().BoolP("continue", "c", false, "Start from the watch history")
	miniCmd.Flags().StringP("status", "s", "", "Only show videos with this processing status")
	lo.Must0(miniCmd.RegisterFlagCompletionFunc("status", completionStatuses))
}

// miniCmd launches the application in a lightweight, prompt-based interface.
var miniCmd = &cobra.Command{
	Use:   "mini",
	Short: "Launch the application in a lightweight, prompt-based interface",
	Long:  `Browse, upload and watch videos through a sequence of prompts instead of the full-screen interface.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		handleErr(validateStatusFlag(cmd))
	},
	Run: func(cmd *cobra.Command, args []string) {
		client, err := api.FromConfig()
		handleErr(err)

		options := mini.Options{
			Status:  lo.Must(cmd.Flags().GetString("status")),
			History: lo.Must(cmd.Flags().GetBool("continue")),
		}
		handleErr(mini.Run(cmd.Context(), client, &options))
	},
}
