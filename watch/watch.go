// Package watch triggers the per-video pipeline when new recordings land
// in a folder.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"killfeed/config"
	"killfeed/index"
	"killfeed/pipeline"
)

// settleInterval is how often a new file's size is re-checked while the
// recorder may still be writing it.
const settleInterval = 2 * time.Second

// Watcher monitors one folder and processes each new video exactly once.
type Watcher struct {
	cfg    *config.Config
	runner *pipeline.Runner
	store  *index.Store
	log    zerolog.Logger
}

func New(cfg *config.Config, runner *pipeline.Runner, store *index.Store, log zerolog.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		runner: runner,
		store:  store,
		log:    log.With().Str("component", "watch").Logger(),
	}
}

// Run sweeps folder for existing videos, then blocks processing new ones
// until ctx is cancelled. Per-video failures are logged and do not stop
// the watcher.
func (w *Watcher) Run(ctx context.Context, folder string) error {
	if st, err := os.Stat(folder); err != nil || !st.IsDir() {
		return fmt.Errorf("watch folder %s is not a directory", folder)
	}

	if err := w.sweepExisting(folder); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(folder); err != nil {
		return fmt.Errorf("watch %s: %w", folder, err)
	}
	w.log.Info().Str("folder", folder).Msg("watching for new videos")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !w.cfg.MatchesExtension(event.Name) {
				continue
			}
			w.handleNewFile(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// sweepExisting processes videos already present when watching starts.
func (w *Watcher) sweepExisting(folder string) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return err
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !w.cfg.MatchesExtension(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(videos)

	if len(videos) > 0 {
		w.log.Info().Int("count", len(videos)).Msg("processing existing videos")
	}
	for _, path := range videos {
		w.processOnce(path)
	}
	return nil
}

// handleNewFile waits for the file to finish being written, then runs the
// pipeline on it.
func (w *Watcher) handleNewFile(ctx context.Context, path string) {
	w.log.Info().Str("path", path).Msg("new video detected")

	if !w.waitForSettle(ctx, path) {
		return
	}
	w.processOnce(path)
}

// waitForSettle blocks until the file size stops changing between checks,
// or returns false if the file disappears or ctx is cancelled.
func (w *Watcher) waitForSettle(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(settleInterval):
		}

		st, err := os.Stat(path)
		if err != nil {
			w.log.Warn().Str("path", path).Msg("file vanished before processing")
			return false
		}
		if st.Size() == lastSize {
			return true
		}
		lastSize = st.Size()
	}
}

// processOnce runs the pipeline unless the index already records the path.
func (w *Watcher) processOnce(path string) {
	seen, err := w.store.Seen(path)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("index lookup failed")
		return
	}
	if seen {
		w.log.Debug().Str("path", path).Msg("already processed, skipping")
		return
	}

	result, err := w.runner.Process(path)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("processing failed")
		return
	}

	if err := w.store.Mark(path, result.VideoID, result.RunID, len(result.Events)); err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("failed to record processed video")
	}
	w.log.Info().Str("path", path).Int("events", len(result.Events)).Msg("processing complete")
}
