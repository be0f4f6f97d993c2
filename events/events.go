// Package events turns the per-frame detection stream into discrete
// killfeed events and persists them.
package events

import (
	"sort"

	"killfeed/detection"
)

// Classification tags. An event of exactly two boxes sits below the
// multikill threshold but above a single kill and is deliberately left
// UNKNOWN rather than guessed at.
const (
	TagKill      = "KILL"
	TagMultiKill = "MULTI_KILL"
	TagUnknown   = "UNKNOWN"
)

// Event is a maximal run of detections with no inter-detection gap above
// the grouping threshold. Immutable once created.
type Event struct {
	VideoID        string                `json:"video_id"`
	StartFrame     int                   `json:"start_frame"`
	EndFrame       int                   `json:"end_frame"`
	StartTime      float64               `json:"start_time"`
	EndTime        float64               `json:"end_time"`
	BoxCount       int                   `json:"box_count"`
	StackSlotRange [2]int                `json:"stack_slot_range"`
	TagGuess       string                `json:"tag_guess"`
	Confidence     float64               `json:"confidence"`
	Detections     []detection.Detection `json:"detections"`
}

// Grouper chains time-adjacent detections into events.
type Grouper struct {
	// DeltaT is the maximum gap in seconds between a detection and the
	// last one accumulated for the run to continue.
	DeltaT float64
	// MultikillBoxes is the box count at which an event becomes MULTI_KILL.
	MultikillBoxes int
}

// Group merges detections into events. Input order does not matter; the
// detections are sorted by timestamp first. This is chain grouping, not
// windowing: a long run of closely spaced detections forms one arbitrarily
// long event. An empty input yields an empty result.
func (g Grouper) Group(detections []detection.Detection, videoID string) []Event {
	if len(detections) == 0 {
		return nil
	}

	sorted := make([]detection.Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimeSec < sorted[j].TimeSec
	})

	var events []Event
	var current []detection.Detection

	for _, det := range sorted {
		if len(current) == 0 {
			current = append(current, det)
			continue
		}
		last := current[len(current)-1]
		if det.TimeSec-last.TimeSec <= g.DeltaT {
			current = append(current, det)
		} else {
			events = append(events, g.makeEvent(current, videoID))
			current = []detection.Detection{det}
		}
	}
	if len(current) > 0 {
		events = append(events, g.makeEvent(current, videoID))
	}
	return events
}

func (g Grouper) makeEvent(dets []detection.Detection, videoID string) Event {
	ev := Event{
		VideoID:        videoID,
		StartFrame:     dets[0].Frame,
		EndFrame:       dets[0].Frame,
		StartTime:      dets[0].TimeSec,
		EndTime:        dets[0].TimeSec,
		StackSlotRange: [2]int{dets[0].StackSlot, dets[0].StackSlot},
		BoxCount:       len(dets),
		Detections:     dets,
	}

	sum := 0.0
	for _, d := range dets {
		if d.Frame < ev.StartFrame {
			ev.StartFrame = d.Frame
		}
		if d.Frame > ev.EndFrame {
			ev.EndFrame = d.Frame
		}
		if d.TimeSec < ev.StartTime {
			ev.StartTime = d.TimeSec
		}
		if d.TimeSec > ev.EndTime {
			ev.EndTime = d.TimeSec
		}
		if d.StackSlot < ev.StackSlotRange[0] {
			ev.StackSlotRange[0] = d.StackSlot
		}
		if d.StackSlot > ev.StackSlotRange[1] {
			ev.StackSlotRange[1] = d.StackSlot
		}
		sum += d.Confidence
	}
	ev.Confidence = sum / float64(len(dets))
	ev.TagGuess = g.classify(len(dets))
	return ev
}

// classify is a two-branch threshold classifier. Exactly two boxes matches
// neither branch and stays UNKNOWN.
func (g Grouper) classify(boxCount int) string {
	switch {
	case boxCount >= g.MultikillBoxes:
		return TagMultiKill
	case boxCount == 1:
		return TagKill
	default:
		return TagUnknown
	}
}
