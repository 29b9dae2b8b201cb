package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/reelcast/reelcast/api"
	"github.com/reelcast/reelcast/color"
	"github.com/reelcast/reelcast/icon"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/reconcile"
	"github.com/reelcast/reelcast/style"
	"github.com/reelcast/reelcast/util"
	"github.com/reelcast/reelcast/video"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statuses = []video.Status{
	video.StatusPending,
	video.StatusProcessing,
	video.StatusReady,
	video.StatusFailed,
}

func completionStatuses(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return lo.Map(statuses, func(s video.Status, _ int) string { return string(s) }), cobra.ShellCompDirectiveNoFileComp
}

func validateStatusFlag(cmd *cobra.Command) error {
	s := lo.Must(cmd.Flags().GetString("status"))
	if s != "" && !video.Status(s).IsValid() {
		names, _ := completionStatuses(cmd, nil, "")
		return fmt.Errorf("unknown status %q, expected one of: %s", s, strings.Join(names, ", "))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntP("limit", "l", 0, "Number of videos to fetch (defaults to api.page_size)")
	listCmd.Flags().IntP("offset", "o", 0, "Number of videos to skip")
	listCmd.Flags().StringP("status", "s", "", "Only show videos with this processing status")
	lo.Must0(listCmd.RegisterFlagCompletionFunc("status", completionStatuses))
	listCmd.Flags().StringP("filter", "f", "", "Fuzzy filter the page by title")
	listCmd.Flags().BoolP("json", "j", false, "Format the output as JSON")
	listCmd.Flags().Bool("schema", false, "Print the JSON Schema of the --json output and exit")
	listCmd.Flags().BoolP("watch", "w", false, "Keep following the page until every video finished processing")

	listCmd.MarkFlagsMutuallyExclusive("json", "watch")
	listCmd.SetOut(os.Stdout)
}

// listCmd prints one page of the library.
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the videos of the library",
	Example: "  reelcast list --status processing --watch",
	Args:    cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		handleErr(validateStatusFlag(cmd))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("schema")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(schemaOf(&video.Page{})))
			return
		}

		client, err := api.FromConfig()
		handleErr(err)

		opts := api.ListOptions{
			Limit:  lo.Must(cmd.Flags().GetInt("limit")),
			Offset: lo.Must(cmd.Flags().GetInt("offset")),
		}
		if opts.Limit <= 0 {
			opts.Limit = viper.GetInt(key.APIPageSize)
		}
		if s := lo.Must(cmd.Flags().GetString("status")); s != "" {
			opts.Status = mo.Some(video.Status(s))
		}
		filter := lo.Must(cmd.Flags().GetString("filter"))

		page, err := client.List(cmd.Context(), opts)
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(cmd.OutOrStdout()).Encode(filterPage(page, filter)))
			return
		}

		out := cmd.OutOrStdout()
		printPage(out, filterPage(page, filter), time.Now())

		if !lo.Must(cmd.Flags().GetBool("watch")) || !page.HasPending() {
			return
		}

		poller := reconcile.WatchList(cmd.Context(), page, func(ctx context.Context) (*video.Page, error) {
			return client.List(ctx, opts)
		}, reconcile.Options{})
		defer poller.Stop()

		seen := statusesOf(page)
		for update := range poller.Updates() {
			if update.Err != nil {
				fmt.Fprintf(os.Stderr, "%s refresh failed: %s\n", icon.Get(icon.Fail), update.Err)
				continue
			}

			for _, change := range statusChanges(seen, update.Page) {
				fmt.Fprintln(out, change)
			}
			seen = statusesOf(update.Page)

			if !update.Page.HasPending() {
				return
			}
		}
	},
}

// schemaOf reflects the JSON Schema of v, qualifying names that would otherwise clash.
func schemaOf(v any) *jsonschema.Schema {
	reflector := new(jsonschema.Reflector)
	reflector.Anonymous = true
	reflector.Namer = func(t reflect.Type) string {
		name := t.Name()
		switch strings.ToLower(name) {
		case "record", "page", "resolution", "patch":
			return filepath.Base(t.PkgPath()) + "." + name
		}

		return name
	}

	return reflector.Reflect(v)
}

// filterPage keeps the records whose title fuzzy-matches term, best matches first.
func filterPage(page *video.Page, term string) *video.Page {
	if term == "" {
		return page
	}

	titles := lo.Map(page.Videos, func(r video.Record, _ int) string { return r.Title })
	ranks := fuzzy.RankFindNormalizedFold(term, titles)
	sort.Sort(ranks)

	return &video.Page{
		Videos: lo.Map(ranks, func(r fuzzy.Rank, _ int) video.Record { return page.Videos[r.OriginalIndex] }),
		Total:  page.Total,
	}
}

func printPage(out io.Writer, page *video.Page, now time.Time) {
	if len(page.Videos) == 0 {
		fmt.Fprintln(out, style.Faint("No videos"))
		return
	}

	for i := range page.Videos {
		printRecordLine(out, &page.Videos[i], now)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, style.Faint(fmt.Sprintf("%d of %s", len(page.Videos), util.Quantify(page.Total, "video", "videos"))))
}

func printRecordLine(out io.Writer, rec *video.Record, now time.Time) {
	fmt.Fprintf(
		out,
		"%s %s %s %s\n",
		style.Status(rec.Status),
		style.Fg(color.Purple)(rec.Title),
		style.Faint(rec.ID),
		style.Faint(strings.Join([]string{
			video.FormatFileSize(rec.OriginalSize),
			video.FormatDuration(rec.DurationSeconds),
			video.TimeAgo(rec.CreatedAt, now),
		}, " • ")),
	)
}

func statusesOf(page *video.Page) map[string]video.Status {
	return lo.SliceToMap(page.Videos, func(r video.Record) (string, video.Status) {
		return r.ID, r.Status
	})
}

// statusChanges describes every record of page whose status differs from seen.
func statusChanges(seen map[string]video.Status, page *video.Page) []string {
	var changes []string
	for _, rec := range page.Videos {
		before, ok := seen[rec.ID]
		if ok && before == rec.Status {
			continue
		}

		from := "new"
		if ok {
			from = string(before)
		}
		changes = append(changes, fmt.Sprintf(
			"%s %s %s -> %s",
			icon.Get(icon.ForStatus(rec.Status)),
			style.Fg(color.Purple)(rec.Title),
			style.Faint(from),
			style.Status(rec.Status),
		))
	}
	return changes
}
