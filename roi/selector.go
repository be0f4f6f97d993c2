// Package roi provides the interactive crop picker. The selected rectangle
// is stored as percentages of the frame so the same configuration applies
// at any capture resolution.
package roi

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"killfeed/config"
	"killfeed/video"
)

// Selection is a picked region in both pixel and percentage coordinates.
type Selection struct {
	Rect          image.Rectangle
	XPercent      float64
	YPercent      float64
	WidthPercent  float64
	HeightPercent float64
}

// Pick decodes frameNumber from videoPath and lets the user drag the
// killfeed region in a window. Returns nil when the selection is cancelled
// (empty rectangle).
func Pick(videoPath string, frameNumber int, log zerolog.Logger) (*Selection, error) {
	info, err := video.Probe(videoPath)
	if err != nil {
		return nil, err
	}
	if frameNumber < 0 {
		frameNumber = 0
	}
	if frameNumber >= info.FrameCount && info.FrameCount > 0 {
		frameNumber = info.FrameCount - 1
	}

	vc, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", video.ErrSourceUnavailable, videoPath, err)
	}
	defer vc.Close()

	vc.Set(gocv.VideoCapturePosFrames, float64(frameNumber))

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := vc.Read(&frame); !ok || frame.Empty() {
		return nil, fmt.Errorf("could not read frame %d from %s", frameNumber, videoPath)
	}

	window := gocv.NewWindow("Select killfeed region, then press ENTER")
	defer window.Close()
	window.ResizeWindow(1280, 720)

	rect := window.SelectROI(frame)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		log.Warn().Msg("ROI selection cancelled")
		return nil, nil
	}

	w := float64(frame.Cols())
	h := float64(frame.Rows())
	sel := &Selection{
		Rect:          rect,
		XPercent:      float64(rect.Min.X) / w,
		YPercent:      float64(rect.Min.Y) / h,
		WidthPercent:  float64(rect.Dx()) / w,
		HeightPercent: float64(rect.Dy()) / h,
	}
	log.Info().
		Str("pixels", rect.String()).
		Float64("x_percent", sel.XPercent).
		Float64("y_percent", sel.YPercent).
		Float64("width_percent", sel.WidthPercent).
		Float64("height_percent", sel.HeightPercent).
		Msg("ROI selected")
	return sel, nil
}

// Apply writes the selection into cfg's detection group and persists the
// config file.
func Apply(sel *Selection, cfg *config.Config, configPath string) error {
	cfg.Detection.ROIXPercent = sel.XPercent
	cfg.Detection.ROIYPercent = sel.YPercent
	cfg.Detection.ROIWidthPercent = sel.WidthPercent
	cfg.Detection.ROIHeightPercent = sel.HeightPercent

	if configPath == "" {
		configPath = "killfeed.yaml"
	}
	return cfg.Save(configPath)
}
