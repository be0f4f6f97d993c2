// Package clips cuts standalone highlight files around clusters of
// killfeed events.
package clips

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"killfeed/config"
	"killfeed/events"
	"killfeed/video"
)

// codecFallbacks is the ordered attempt list used when the source codec
// tag is unusable. mp4v is last and always accepted by the OpenCV backend.
var codecFallbacks = []string{"avc1", "XVID", "mp4v"}

// Extractor re-encodes event clusters from a source video into clip files.
type Extractor struct {
	cfg config.ClippingConfig
	log zerolog.Logger
}

func NewExtractor(cfg config.ClippingConfig, log zerolog.Logger) *Extractor {
	return &Extractor{cfg: cfg, log: log.With().Str("component", "clips").Logger()}
}

// Extract filters and clusters evs, then writes one clip per cluster under
// outputDir/clips. Per-cluster encode failures are logged and skipped;
// the returned paths are the clips that verified as non-empty on disk.
func (e *Extractor) Extract(videoPath string, evs []events.Event, outputDir string) ([]string, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	filtered := e.Filter(evs)
	if len(filtered) == 0 {
		e.log.Warn().Str("video", videoPath).Msg("no events match clipping criteria")
		return nil, nil
	}

	info, err := video.Probe(videoPath)
	if err != nil {
		return nil, err
	}

	clipsDir := filepath.Join(outputDir, "clips")
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}

	clusters := Cluster(filtered, e.cfg.ClusterThresholdSeconds)

	var out []string
	for idx, cluster := range clusters {
		path, err := e.extractCluster(videoPath, cluster, clipsDir, info, idx)
		if err != nil {
			e.log.Error().Err(err).Str("video", videoPath).Int("cluster", idx).
				Msg("clip extraction failed, skipping cluster")
			continue
		}
		out = append(out, path)
	}

	e.log.Info().Str("video", videoPath).Int("clips", len(out)).
		Int("clusters", len(clusters)).Int("events", len(filtered)).
		Msg("clip extraction complete")
	return out, nil
}

// Filter drops events below the confidence or box-count floors, or outside
// a non-empty tag allow-list, then ranks survivors best-first by
// (confidence, box count) and truncates to the configured maximum.
func (e *Extractor) Filter(evs []events.Event) []events.Event {
	var filtered []events.Event
	for _, ev := range evs {
		if ev.Confidence < e.cfg.MinConfidence {
			continue
		}
		if ev.BoxCount < e.cfg.MinBoxCount {
			continue
		}
		if len(e.cfg.AllowedTags) > 0 && !containsTag(e.cfg.AllowedTags, ev.TagGuess) {
			continue
		}
		filtered = append(filtered, ev)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		return filtered[i].BoxCount > filtered[j].BoxCount
	})

	if e.cfg.MaxClips > 0 && len(filtered) > e.cfg.MaxClips {
		filtered = filtered[:e.cfg.MaxClips]
	}
	return filtered
}

// Cluster chains events whose start follows the previously appended
// event's end by no more than threshold seconds. Same chain-grouping
// discipline as detection grouping, applied to events.
func Cluster(evs []events.Event, threshold float64) [][]events.Event {
	if len(evs) == 0 {
		return nil
	}

	sorted := make([]events.Event, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	var clusters [][]events.Event
	current := []events.Event{sorted[0]}
	for _, ev := range sorted[1:] {
		last := current[len(current)-1]
		if ev.StartTime-last.EndTime <= threshold {
			current = append(current, ev)
		} else {
			clusters = append(clusters, current)
			current = []events.Event{ev}
		}
	}
	return append(clusters, current)
}

// extractCluster re-encodes the padded span covering every event in the
// cluster. The clip only counts if the output file exists and is non-empty;
// otherwise the partial file is removed and an error returned.
func (e *Extractor) extractCluster(videoPath string, cluster []events.Event, clipsDir string, info video.Info, idx int) (string, error) {
	startTime := cluster[0].StartTime
	endTime := cluster[0].EndTime
	for _, ev := range cluster[1:] {
		if ev.StartTime < startTime {
			startTime = ev.StartTime
		}
		if ev.EndTime > endTime {
			endTime = ev.EndTime
		}
	}

	startTime -= e.cfg.PrePaddingSeconds
	if startTime < 0 {
		startTime = 0
	}
	endTime += e.cfg.PostPaddingSeconds

	startFrame := int(startTime * info.FPS)
	endFrame := int(endTime * info.FPS)

	clipPath := filepath.Join(clipsDir, clipFilename(cluster, idx, startTime))

	vc, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", video.ErrSourceUnavailable, videoPath, err)
	}
	defer vc.Close()

	vc.Set(gocv.VideoCapturePosFrames, float64(startFrame))

	writer, codec, err := openWriter(clipPath, info)
	if err != nil {
		return "", err
	}

	e.log.Debug().Str("clip", clipPath).Str("codec", codec).
		Int("start_frame", startFrame).Int("end_frame", endFrame).
		Msg("writing clip")

	frame := gocv.NewMat()
	defer frame.Close()

	for current := startFrame; current <= endFrame; current++ {
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}
		if err := writer.Write(frame); err != nil {
			break
		}
	}
	writer.Close()

	st, err := os.Stat(clipPath)
	if err != nil || st.Size() == 0 {
		os.Remove(clipPath)
		return "", fmt.Errorf("clip %s was not written", clipPath)
	}
	return clipPath, nil
}

// openWriter creates the clip writer, preferring the detected source codec
// when it is a clean 4-character tag and falling back through the ordered
// codec list. The final mp4v attempt is expected to succeed everywhere.
func openWriter(path string, info video.Info) (*gocv.VideoWriter, string, error) {
	candidates := make([]string, 0, len(codecFallbacks)+1)
	if validFourCC(info.Codec) {
		candidates = append(candidates, info.Codec)
	}
	candidates = append(candidates, codecFallbacks...)

	for _, codec := range candidates {
		w, err := gocv.VideoWriterFile(path, codec, info.FPS, info.Width, info.Height, true)
		if err == nil && w.IsOpened() {
			return w, codec, nil
		}
		if w != nil {
			w.Close()
		}
	}
	return nil, "", fmt.Errorf("no usable codec for %s (tried %v)", path, candidates)
}

// validFourCC reports whether tag is a usable 4-character alphanumeric
// codec identifier.
func validFourCC(tag string) bool {
	if len(tag) != 4 {
		return false
	}
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// clipFilename encodes video id, cluster index, dominant tag, event count
// (when more than one) and the clip start offset:
// {video_id}_{idx:03d}_{tag}[x{n}]_{start:04d}s.mp4
func clipFilename(cluster []events.Event, idx int, startTime float64) string {
	countSuffix := ""
	if len(cluster) > 1 {
		countSuffix = fmt.Sprintf("x%d", len(cluster))
	}
	return fmt.Sprintf("%s_%03d_%s%s_%04ds.mp4",
		cluster[0].VideoID, idx, DominantTag(cluster), countSuffix, int(startTime))
}

// DominantTag returns the majority tag across the cluster's events, with
// ties broken by the first tag encountered.
func DominantTag(cluster []events.Event) string {
	counts := make(map[string]int, len(cluster))
	order := make([]string, 0, len(cluster))
	for _, ev := range cluster {
		if _, seen := counts[ev.TagGuess]; !seen {
			order = append(order, ev.TagGuess)
		}
		counts[ev.TagGuess]++
	}

	best := order[0]
	for _, tag := range order[1:] {
		if counts[tag] > counts[best] {
			best = tag
		}
	}
	return best
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
