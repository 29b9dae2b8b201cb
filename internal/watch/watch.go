// Package watch binds a ready record to the configured player and keeps the
// watch history in step with it.
package watch

import (
	"context"

	"github.com/reelcast/reelcast/config"
	"github.com/reelcast/reelcast/history"
	"github.com/reelcast/reelcast/key"
	"github.com/reelcast/reelcast/log"
	"github.com/reelcast/reelcast/network"
	"github.com/reelcast/reelcast/playback"
	"github.com/reelcast/reelcast/player"
	"github.com/reelcast/reelcast/player/hls"
	"github.com/reelcast/reelcast/video"
	"github.com/spf13/viper"
)

// Watch is one record playing in one player process.
type Watch struct {
	Record  *video.Record
	Element player.Element
	Session *playback.Session
}

// EngineConfig reads the adaptive engine tuning from the configuration.
func EngineConfig() playback.EngineConfig {
	return playback.EngineConfig{
		ParallelFetch: viper.GetBool(key.PlayerParallelFetch),
		LowLatency:    viper.GetBool(key.PlayerLowLatency),
		BackBuffer:    config.Seconds(key.PlayerBackBuffer),
	}
}

func threshold() float64 {
	return viper.GetFloat64(key.PlayerCompletionPercentage)
}

// Start launches the configured player for rec, resuming from history when
// the record was left unfinished.
func Start(ctx context.Context, rec *video.Record) (*Watch, error) {
	if !rec.Playable() {
		return nil, playback.ErrNotPlayable
	}

	el, err := player.New(viper.GetString(key.Player), rec.Title)
	if err != nil {
		return nil, err
	}

	cfg := EngineConfig()
	if viper.GetBool(key.HistorySave) {
		resume, err := history.Resume(rec.ID, threshold())
		if err != nil {
			log.Warnf("read history: %s", err)
		}
		cfg.StartPosition = resume
	}

	session := playback.NewSession(hls.Factory{Client: network.Client}, playback.WithEngineConfig(cfg))
	if err := session.AttachRecord(ctx, el, rec); err != nil {
		_ = el.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"id":     rec.ID,
		"player": el.Name(),
		"mode":   session.Snapshot().Mode.String(),
		"resume": cfg.StartPosition,
	}).Info("watching")

	return &Watch{Record: rec, Element: el, Session: session}, nil
}

// Wait blocks until the player exits, the session fails or ctx is done.
func (w *Watch) Wait(ctx context.Context) error {
	select {
	case <-w.Element.Wait():
		return nil
	case err := <-w.Session.Terminal():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close saves progress, detaches the session and stops the player.
func (w *Watch) Close() error {
	position := w.Session.Position()
	w.Session.Detach()

	if viper.GetBool(key.HistorySave) && position > 0 {
		var duration float64
		if d, ok := w.Element.(interface{ Duration() float64 }); ok {
			duration = d.Duration()
		}
		if err := history.Save(w.Record, position, duration); err != nil {
			log.Warnf("save history: %s", err)
		}
	}

	return w.Element.Close()
}
