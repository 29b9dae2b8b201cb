// Package history persists how far each video has been watched so playback
// can resume where it stopped.
package history

import (
	"github.com/metafates/gache"
	"github.com/reelcast/reelcast/filesystem"
	"github.com/reelcast/reelcast/video"
	"github.com/reelcast/reelcast/where"
)

// cacher provides an abstracted, disk-backed registry keyed by video id.
var cacher = gache.New[map[string]*Entry](
	&gache.Options{
		Path:       where.History(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns every saved entry.
func Get() (map[string]*Entry, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Entry), nil
	}
	return cached, nil
}

// Save records that rec was watched up to position seconds of duration.
// A duration of zero falls back to the record's own duration.
func Save(rec *video.Record, position, duration float64) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	entry := newEntry(rec, position, duration)

	// keep the highest percentage seen so a rewatch never lowers it
	if existing, ok := saved[entry.VideoID]; ok && existing.WatchedPercentage > entry.WatchedPercentage {
		entry.WatchedPercentage = existing.WatchedPercentage
	}

	saved[entry.VideoID] = entry
	return cacher.Set(saved)
}

// Resume returns where to restart rec, or zero when it was never watched
// or was watched past threshold percent.
func Resume(id string, threshold float64) (float64, error) {
	saved, err := Get()
	if err != nil {
		return 0, err
	}

	entry, ok := saved[id]
	if !ok || entry.Finished(threshold) {
		return 0, nil
	}
	return entry.Position, nil
}

// Remove deletes the entry for id. Deleted videos call it so no stale
// entry survives.
func Remove(id string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	if _, ok := saved[id]; !ok {
		return nil
	}
	delete(saved, id)
	return cacher.Set(saved)
}
