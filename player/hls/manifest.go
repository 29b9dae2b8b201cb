package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/reelcast/reelcast/playback"
	"golang.org/x/exp/slices"
)

// fetchLevels downloads the manifest at source and returns its levels
// ordered by bitrate. A media playlist yields a single level.
func fetchLevels(ctx context.Context, client *http.Client, source string) ([]playback.Level, error) {
	base, err := url.Parse(source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &loadError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &loadError{err: fmt.Errorf("manifest: %s", resp.Status)}
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if listType != m3u8.MASTER {
		return []playback.Level{{Index: 0, Name: "source", URI: source}}, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	levels := make([]playback.Level, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.Iframe {
			continue
		}

		ref, err := url.Parse(v.URI)
		if err != nil {
			return nil, fmt.Errorf("variant uri %q: %w", v.URI, err)
		}

		width, height := parseResolution(v.Resolution)
		level := playback.Level{
			Name:    v.Name,
			Width:   width,
			Height:  height,
			Bitrate: int(v.Bandwidth),
			URI:     base.ResolveReference(ref).String(),
		}
		if level.Name == "" && height > 0 {
			level.Name = strconv.Itoa(height) + "p"
		}
		levels = append(levels, level)
	}

	if len(levels) == 0 {
		return nil, fmt.Errorf("parse manifest: no variants")
	}

	slices.SortStableFunc(levels, func(a, b playback.Level) int {
		return a.Bitrate - b.Bitrate
	})
	for i := range levels {
		levels[i].Index = i
	}
	return levels, nil
}

// parseResolution reads a RESOLUTION attribute such as "1280x720".
func parseResolution(res string) (width, height int) {
	w, h, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return 0, 0
	}
	width, _ = strconv.Atoi(w)
	height, _ = strconv.Atoi(h)
	return width, height
}

// loadError marks a failure to reach the manifest, as opposed to a bad one.
type loadError struct {
	err error
}

func (e *loadError) Error() string { return "load manifest: " + e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }
