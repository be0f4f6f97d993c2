// Package progress carries the per-run statistics context through the
// pipeline. It exists so the stages stay pure with respect to their
// inputs: counters live here, not in package globals.
package progress

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
)

// Stats accumulates counters for one pipeline invocation.
type Stats struct {
	FramesProcessed int
	DetectionsFound int
	EventsCreated   int
	// ProcessingSpeed is sampled frames per wall-clock second.
	ProcessingSpeed float64
}

// Tracker is the explicit progress context handed to each stage. It also
// implements detection.Observer so it can be injected as the detector's
// per-frame side-channel.
type Tracker struct {
	Log   zerolog.Logger
	Stats Stats

	showDetectionStats bool
	started            time.Time
}

// NewTracker creates a tracker logging through log. When verbose detection
// stats are enabled, every sampled frame is logged at debug level.
func NewTracker(log zerolog.Logger, showDetectionStats bool) *Tracker {
	return &Tracker{
		Log:                log.With().Str("component", "progress").Logger(),
		showDetectionStats: showDetectionStats,
		started:            time.Now(),
	}
}

// FrameProcessed implements detection.Observer.
func (t *Tracker) FrameProcessed(frameIndex, detections int, elapsed time.Duration) {
	t.Stats.FramesProcessed++
	t.Stats.DetectionsFound += detections

	if wall := time.Since(t.started).Seconds(); wall > 0 {
		t.Stats.ProcessingSpeed = float64(t.Stats.FramesProcessed) / wall
	}

	if t.showDetectionStats {
		t.Log.Debug().Int("frame", frameIndex).Int("detections", detections).
			Dur("elapsed", elapsed).Msg("frame processed")
	}
}

// EventsCreated records the grouping result.
func (t *Tracker) EventsCreated(n int) {
	t.Stats.EventsCreated = n
}

// Summary writes the final run table to stderr and logs the totals.
func (t *Tracker) Summary(tagCounts map[string]int, outputs map[string]string) {
	total := time.Since(t.started)

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total time\t%.2fs\n", total.Seconds())
	fmt.Fprintf(w, "Frames processed\t%d\n", t.Stats.FramesProcessed)
	fmt.Fprintf(w, "Detections found\t%d\n", t.Stats.DetectionsFound)
	fmt.Fprintf(w, "Events created\t%d\n", t.Stats.EventsCreated)
	if t.Stats.FramesProcessed > 0 {
		fmt.Fprintf(w, "Avg detections/frame\t%.2f\n",
			float64(t.Stats.DetectionsFound)/float64(t.Stats.FramesProcessed))
	}
	fmt.Fprintf(w, "Processing speed\t%.2f frames/s\n", t.Stats.ProcessingSpeed)
	for tag, count := range tagCounts {
		fmt.Fprintf(w, "Events %s\t%d\n", tag, count)
	}
	for kind, path := range outputs {
		fmt.Fprintf(w, "Output %s\t%s\n", kind, path)
	}
	w.Flush()

	t.Log.Info().
		Int("frames", t.Stats.FramesProcessed).
		Int("detections", t.Stats.DetectionsFound).
		Int("events", t.Stats.EventsCreated).
		Float64("fps", t.Stats.ProcessingSpeed).
		Msg("run complete")
}
