// Package pipeline orchestrates one self-contained analysis run per video:
// probe, sample, detect, group, export, and optionally clip.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"killfeed/clips"
	"killfeed/config"
	"killfeed/detection"
	"killfeed/events"
	"killfeed/progress"
	"killfeed/video"
)

// Result summarizes one processed video.
type Result struct {
	VideoID    string
	RunID      string
	Detections int
	Events     []events.Event
	ClipPaths  []string
	// Outputs maps artifact kind ("csv", "json", "clips") to path.
	Outputs map[string]string
}

// Runner executes the detection pipeline for single videos. Runs are
// synchronous and blocking; concurrent invocations must use separate
// Process calls, which share nothing.
type Runner struct {
	cfg *config.Config
	log zerolog.Logger
}

func NewRunner(cfg *config.Config, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: log.With().Str("component", "pipeline").Logger()}
}

// VideoID derives the identifier used in exports and clip names: the file
// name without its extension.
func VideoID(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Process analyzes one video end to end. A source that cannot be opened
// returns an error; per-frame and per-cluster failures inside the run are
// logged and absorbed.
func (r *Runner) Process(videoPath string) (*Result, error) {
	runID := uuid.NewString()
	videoID := VideoID(videoPath)
	log := r.log.With().Str("run_id", runID).Str("video", videoID).Logger()

	info, err := video.Probe(videoPath)
	if err != nil {
		return nil, err
	}
	log.Info().
		Float64("fps", info.FPS).
		Int("frames", info.FrameCount).
		Str("resolution", fmt.Sprintf("%dx%d", info.Width, info.Height)).
		Float64("duration_sec", info.Duration).
		Str("codec", info.Codec).
		Int64("file_size", info.FileSize).
		Msg("video opened")

	tracker := progress.NewTracker(log, r.cfg.Verbosity.ShowDetectionStats)
	dets, err := r.detectAll(videoPath, info, tracker)
	if err != nil {
		return nil, err
	}
	log.Info().Int("detections", len(dets)).Msg("frame scan complete")

	grouper := events.Grouper{
		DeltaT:         r.cfg.Detection.GroupingDeltaT,
		MultikillBoxes: r.cfg.Detection.MinBoxesForMultikill,
	}
	evs := grouper.Group(dets, videoID)
	tracker.EventsCreated(len(evs))
	log.Info().Int("events", len(evs)).Msg("detections grouped")

	result := &Result{
		VideoID:    videoID,
		RunID:      runID,
		Detections: len(dets),
		Events:     evs,
		Outputs:    make(map[string]string),
	}

	if r.cfg.Export.ExportCSV {
		csvPath := filepath.Join(r.cfg.OutputFolder, videoID+"_events.csv")
		if err := events.ExportCSV(evs, csvPath); err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			result.Outputs["csv"] = csvPath
		}
	}
	if r.cfg.Export.ExportJSON {
		jsonPath := filepath.Join(r.cfg.OutputFolder, videoID+"_events.json")
		if err := events.ExportJSON(evs, jsonPath); err != nil {
			return nil, err
		}
		if len(evs) > 0 {
			result.Outputs["json"] = jsonPath
		}
	}

	if r.cfg.Clipping.Enabled && len(evs) > 0 {
		extractor := clips.NewExtractor(r.cfg.Clipping, log)
		paths, err := extractor.Extract(videoPath, evs, r.cfg.OutputFolder)
		if err != nil {
			return nil, err
		}
		result.ClipPaths = paths
		if len(paths) > 0 {
			result.Outputs["clips"] = filepath.Dir(paths[0])
		}
	}

	tracker.Summary(tagCounts(evs), result.Outputs)
	return result, nil
}

// detectAll drives the sampler through the detector, accumulating every
// detection. The sampler handle is released on every exit path.
func (r *Runner) detectAll(videoPath string, info video.Info, tracker *progress.Tracker) ([]detection.Detection, error) {
	sampler, err := video.NewSampler(videoPath, info.FPS, r.cfg.Detection.SampleFPS)
	if err != nil {
		return nil, err
	}
	defer sampler.Close()

	detector := detection.New(r.cfg.Detection, tracker)

	var all []detection.Detection
	for {
		frame, ok := sampler.Next()
		if !ok {
			break
		}
		all = append(all, detector.Detect(frame.Mat, frame.Index, frame.Time)...)
	}
	return all, nil
}

func tagCounts(evs []events.Event) map[string]int {
	counts := make(map[string]int)
	for _, ev := range evs {
		counts[ev.TagGuess]++
	}
	return counts
}
