package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/open"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	showCmd.Flags().Bool("open-thumbnail", false, "Open the thumbnail with the default image viewer")
	showCmd.SetOut(os.Stdout)
}

// showCmd prints every field of one record.
var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Display the details of a video",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := api.FromConfig()
		handleErr(err)

		rec, err := client.Get(cmd.Context(), args[0])
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(rec))
			return
		}

		handleErr(renderRecord(cmd, rec))

		if lo.Must(cmd.Flags().GetBool("open-thumbnail")) {
			if rec.ThumbnailURL == nil || *rec.ThumbnailURL == "" {
				handleErr(errors.New("the video has no thumbnail yet"))
			}
			handleErr(open.Start(*rec.ThumbnailURL))
		}
	},
}

var recordTemplate = lo.Must(template.New("record").Funcs(template.FuncMap{
	"faint":   style.Faint,
	"bold":    style.Bold,
	"magenta": style.Fg(color.Purple),
	"status":  style.Status,
	"size":    video.FormatFileSize,
	"length":  video.FormatDuration,
	"ago":     humanize.Time,
}).Parse(`{{ magenta .Record.Title }} {{ status .Record.Status }}
{{ faint (.Record.DescriptionOr "No description") }}

  {{ faint "ID" }}           {{ bold .Record.ID }}
  {{ faint "File" }}         {{ bold .Record.OriginalFilename }} ({{ size .Record.OriginalSize }})
  {{ faint "Duration" }}     {{ bold (length .Record.DurationSeconds) }}
  {{ faint "Created" }}      {{ bold (ago .Record.CreatedAt) }}
{{- if .Renditions }}
  {{ faint "Renditions" }}   {{ bold .Renditions }}
{{- end }}
{{- if .Record.Playable }}
  {{ faint "Stream" }}       {{ .Record.Stream }}
{{- end }}
{{- if .Watched }}
  {{ faint "Watched" }}      {{ bold .Watched }}
{{- end }}
`))

func renderRecord(cmd *cobra.Command, rec *video.Record) error {
	renditions := lo.Map(rec.Resolutions, func(r video.Resolution, _ int) string {
		return fmt.Sprintf("%s (%dkbps)", r.Name, r.Bitrate)
	})

	var watched string
	if saved, err := history.Get(); err != nil {
		log.Warnf("read history: %s", err)
	} else if entry, ok := saved[rec.ID]; ok {
		watched = fmt.Sprintf("%.0f%% %s", entry.WatchedPercentage, humanize.Time(entry.WatchedAt))
	}

	return recordTemplate.Execute(cmd.OutOrStdout(), struct {
		Record     *video.Record
		Renditions string
		Watched    string
	}{
		Record:     rec,
		Renditions: strings.Join(renditions, ", "),
		Watched:    watched,
	})
}
