package events

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// csvHeader is the tabular export schema: aggregate fields only, one row
// per event.
var csvHeader = []string{
	"video_id", "start_frame", "end_frame", "start_time", "end_time",
	"box_count", "stack_slot_min", "stack_slot_max", "tag_guess", "confidence",
}

// ExportCSV writes one row per event. An empty event list is a no-op with
// a logged warning. Parent directories are created as needed.
func ExportCSV(events []Event, path string) error {
	if len(events) == 0 {
		log.Warn().Str("path", path).Msg("no events to export")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			ev.VideoID,
			strconv.Itoa(ev.StartFrame),
			strconv.Itoa(ev.EndFrame),
			strconv.FormatFloat(ev.StartTime, 'f', -1, 64),
			strconv.FormatFloat(ev.EndTime, 'f', -1, 64),
			strconv.Itoa(ev.BoxCount),
			strconv.Itoa(ev.StackSlotRange[0]),
			strconv.Itoa(ev.StackSlotRange[1]),
			ev.TagGuess,
			strconv.FormatFloat(ev.Confidence, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("events", len(events)).Msg("exported events to CSV")
	return nil
}

// Document is the structured export: the durable artifact consumed by the
// external visualizer.
type Document struct {
	VideoID     string  `json:"video_id"`
	TotalEvents int     `json:"total_events"`
	Events      []Event `json:"events"`
}

// ExportJSON writes the full event records including nested detections.
// An empty event list is a no-op with a logged warning.
func ExportJSON(events []Event, path string) error {
	if len(events) == 0 {
		log.Warn().Str("path", path).Msg("no events to export")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	doc := Document{
		VideoID:     events[0].VideoID,
		TotalEvents: len(events),
		Events:      events,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("events", len(events)).Msg("exported events to JSON")
	return nil
}

// LoadJSON reads a structured export back. Round-tripping through
// ExportJSON and LoadJSON preserves event boundaries, tags and confidence.
func LoadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse events %s: %w", path, err)
	}
	return &doc, nil
}
