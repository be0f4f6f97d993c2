package detection

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"killfeed/config"
)

func TestConfidenceBounds(t *testing.T) {
	cases := []struct {
		name   string
		area   float64
		aspect float64
	}{
		{"min area", 100, 1.5},
		{"max area", 5000, 1.5},
		{"narrow", 300, 0.3},
		{"wide", 300, 3.0},
		{"mid", 2550, 1.0},
	}
	for _, tc := range cases {
		c := Confidence(tc.area, tc.aspect, 100, 5000)
		assert.GreaterOrEqual(t, c, 0.0, tc.name)
		assert.LessOrEqual(t, c, 1.0, tc.name)
	}
}

// Area exactly at the bounds pins the area component to 0 or 1; the aspect
// component at the 1.5 peak is exactly 1, so the mean isolates the area
// term.
func TestConfidenceAreaBoundaries(t *testing.T) {
	assert.InDelta(t, 0.5, Confidence(100, 1.5, 100, 5000), 1e-9)  // area conf 0
	assert.InDelta(t, 1.0, Confidence(5000, 1.5, 100, 5000), 1e-9) // area conf 1
}

func TestConfidenceAspectFalloff(t *testing.T) {
	peak := Confidence(2550, 1.5, 100, 5000)
	off := Confidence(2550, 2.5, 100, 5000)
	zero := Confidence(2550, 3.0, 100, 5000)

	assert.Greater(t, peak, off)
	assert.Greater(t, off, zero)
	// Aspect 3.0 is a distance of 1.5 from the peak: aspect conf is 0.
	assert.InDelta(t, 0.25, zero, 1e-9)
}

func TestAssignStackSlotsRightmostFirst(t *testing.T) {
	boxes := []scoredBox{
		{rect: image.Rect(40, 0, 100, 30), confidence: 0.5},
		{rect: image.Rect(300, 0, 360, 30), confidence: 0.6},
		{rect: image.Rect(150, 0, 210, 30), confidence: 0.7},
	}

	dets := assignStackSlots(boxes, 12, 0.4)
	require.Len(t, dets, 3)

	// Slots are a permutation of 0..n-1 in descending x order.
	assert.Equal(t, 300, dets[0].X)
	assert.Equal(t, 150, dets[1].X)
	assert.Equal(t, 40, dets[2].X)
	for slot, d := range dets {
		assert.Equal(t, slot, d.StackSlot)
		assert.Equal(t, 12, d.Frame)
		assert.Equal(t, 0.4, d.TimeSec)
	}
}

func TestAssignStackSlotsEmpty(t *testing.T) {
	assert.Empty(t, assignStackSlots(nil, 0, 0))
}

func TestROIRectClamping(t *testing.T) {
	d := New(config.DetectionConfig{
		ROIXPercent: 0.9, ROIYPercent: 0.9,
		ROIWidthPercent: 0.5, ROIHeightPercent: 0.5,
	}, nil)

	r := d.roiRect(1920, 1080)
	assert.LessOrEqual(t, r.Max.X, 1920)
	assert.LessOrEqual(t, r.Max.Y, 1080)
	assert.Greater(t, r.Dx(), 0)
	assert.Greater(t, r.Dy(), 0)
}

func TestDetectZeroAreaROI(t *testing.T) {
	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8UC3)
	defer frame.Close()

	d := New(config.DetectionConfig{
		ROIWidthPercent: 0, ROIHeightPercent: 0,
		BrightnessThreshold: 200,
		MinArea:             100, MaxArea: 5000,
		AspectRatioMin: 0.3, AspectRatioMax: 3.0,
	}, nil)

	assert.Empty(t, d.Detect(frame, 0, 0))
}

// End-to-end detector check on a synthetic frame: two bright boxes drawn
// inside the killfeed region must come back filtered, scored and slotted.
func TestDetectSyntheticFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8UC3)
	defer frame.Close()

	white := color.RGBA{255, 255, 255, 0}
	// Default ROI covers x [0,672), y [702,972) at 1920x1080. Both boxes
	// are 60x30 (area ~1800, aspect 2.0), inside all filter ranges.
	gocv.Rectangle(&frame, image.Rect(100, 750, 160, 780), white, -1)
	gocv.Rectangle(&frame, image.Rect(300, 800, 360, 830), white, -1)

	cfg := config.DetectionConfig{
		ROIXPercent: 0.0, ROIYPercent: 0.65,
		ROIWidthPercent: 0.35, ROIHeightPercent: 0.25,
		BrightnessThreshold: 200,
		UseMorphology:       true,
		MorphKernelSize:     3,
		MinArea:             100, MaxArea: 5000,
		AspectRatioMin: 0.3, AspectRatioMax: 3.0,
	}

	obs := &countingObserver{}
	d := New(cfg, obs)

	dets := d.Detect(frame, 42, 1.4)
	require.Len(t, dets, 2)

	// Rightmost box is the newest entry.
	assert.Equal(t, 0, dets[0].StackSlot)
	assert.Equal(t, 1, dets[1].StackSlot)
	assert.Greater(t, dets[0].X, dets[1].X)

	for _, det := range dets {
		assert.Equal(t, 42, det.Frame)
		assert.Equal(t, 1.4, det.TimeSec)
		assert.InDelta(t, 60, det.Width, 4)
		assert.InDelta(t, 30, det.Height, 4)
		assert.Greater(t, det.Confidence, 0.0)
		assert.LessOrEqual(t, det.Confidence, 1.0)
	}

	assert.Equal(t, 1, obs.frames)
	assert.Equal(t, 2, obs.detections)
}

func TestDetectDarkFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(1080, 1920, gocv.MatTypeCV8UC3)
	defer frame.Close()

	d := New(config.DetectionConfig{
		ROIXPercent: 0.0, ROIYPercent: 0.65,
		ROIWidthPercent: 0.35, ROIHeightPercent: 0.25,
		BrightnessThreshold: 200,
		MinArea:             100, MaxArea: 5000,
		AspectRatioMin: 0.3, AspectRatioMax: 3.0,
	}, nil)

	assert.Empty(t, d.Detect(frame, 0, 0))
}

type countingObserver struct {
	frames     int
	detections int
}

func (c *countingObserver) FrameProcessed(_, detections int, _ time.Duration) {
	c.frames++
	c.detections += detections
}
