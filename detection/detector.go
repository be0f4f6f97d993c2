// Package detection finds bright killfeed boxes in a fixed region of a
// frame. The killfeed stacks new entries from the right and pushes older
// ones left, so horizontal rank stands in for recency and no cross-frame
// tracking is needed.
package detection

import (
	"image"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"killfeed/config"
)

// Detection is one candidate killfeed box in one sampled frame. Coordinates
// are pixels within the cropped region. Immutable once created.
type Detection struct {
	Frame      int     `json:"frame"`
	TimeSec    float64 `json:"time_sec"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	StackSlot  int     `json:"stack_slot"`
	Confidence float64 `json:"confidence"`
}

// Observer receives per-frame detection statistics. It is a side-channel
// for presentation; the detector never depends on what it does.
type Observer interface {
	FrameProcessed(frameIndex, detections int, elapsed time.Duration)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) FrameProcessed(int, int, time.Duration) {}

// Detector runs the crop/threshold/contour/filter pipeline on single
// frames. It holds no per-frame state and is safe to reuse across a video.
type Detector struct {
	cfg config.DetectionConfig
	obs Observer
}

// New creates a detector. obs may be nil for no progress reporting.
func New(cfg config.DetectionConfig, obs Observer) *Detector {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Detector{cfg: cfg, obs: obs}
}

// Detect returns the scored boxes found in frame. A frame that yields
// nothing (including one whose ROI degenerates to zero area) returns an
// empty slice; detection problems never abort the sampling loop.
func (d *Detector) Detect(frame gocv.Mat, frameIndex int, timeSec float64) []Detection {
	start := time.Now()

	roi := d.roiRect(frame.Cols(), frame.Rows())
	if roi.Dx() <= 0 || roi.Dy() <= 0 {
		d.obs.FrameProcessed(frameIndex, 0, time.Since(start))
		return nil
	}

	cropped := frame.Region(roi)
	defer cropped.Close()

	mask := d.thresholdBright(cropped)
	defer mask.Close()

	boxes := d.filterContours(mask)
	dets := assignStackSlots(boxes, frameIndex, timeSec)

	d.obs.FrameProcessed(frameIndex, len(dets), time.Since(start))
	return dets
}

// roiRect converts the percentage-based ROI to pixel coordinates for the
// current resolution and clamps it to the frame bounds.
func (d *Detector) roiRect(w, h int) image.Rectangle {
	x := int(d.cfg.ROIXPercent * float64(w))
	y := int(d.cfg.ROIYPercent * float64(h))
	rw := int(d.cfg.ROIWidthPercent * float64(w))
	rh := int(d.cfg.ROIHeightPercent * float64(h))

	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	if rw > w-x {
		rw = w - x
	}
	if rh > h-y {
		rh = h - y
	}
	return image.Rect(x, y, x+rw, y+rh)
}

// thresholdBright binarizes the cropped region at the brightness cutoff,
// optionally cleaning speckle with a close-then-open pass.
func (d *Detector) thresholdBright(cropped gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(cropped, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	gocv.Threshold(gray, &mask, float32(d.cfg.BrightnessThreshold), 255, gocv.ThresholdBinary)

	if d.cfg.UseMorphology {
		k := d.cfg.MorphKernelSize
		if k < 1 {
			k = 3
		}
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
		defer kernel.Close()
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
		gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
	}
	return mask
}

// scoredBox is a filtered contour bounding box before slot assignment.
type scoredBox struct {
	rect       image.Rectangle
	confidence float64
}

// filterContours keeps outer contours whose area and aspect ratio fall in
// the configured ranges and scores each survivor.
func (d *Detector) filterContours(mask gocv.Mat) []scoredBox {
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var boxes []scoredBox
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < d.cfg.MinArea || area > d.cfg.MaxArea {
			continue
		}

		rect := gocv.BoundingRect(c)
		aspect := 0.0
		if rect.Dy() > 0 {
			aspect = float64(rect.Dx()) / float64(rect.Dy())
		}
		if aspect < d.cfg.AspectRatioMin || aspect > d.cfg.AspectRatioMax {
			continue
		}

		boxes = append(boxes, scoredBox{
			rect:       rect,
			confidence: Confidence(area, aspect, d.cfg.MinArea, d.cfg.MaxArea),
		})
	}
	return boxes
}

// Confidence scores a candidate box in [0,1]: the mean of an area score
// normalized linearly across [minArea,maxArea] and an aspect score peaking
// at a 1.5 width/height ratio.
func Confidence(area, aspect, minArea, maxArea float64) float64 {
	areaConf := 0.0
	if maxArea > minArea {
		areaConf = (area - minArea) / (maxArea - minArea)
	}
	if areaConf > 1 {
		areaConf = 1
	}
	if areaConf < 0 {
		areaConf = 0
	}

	aspectConf := 1.0 - abs(aspect-1.5)/1.5
	if aspectConf < 0 {
		aspectConf = 0
	}
	if aspectConf > 1 {
		aspectConf = 1
	}

	return (areaConf + aspectConf) / 2.0
}

// assignStackSlots orders boxes rightmost-first and assigns slot = rank.
// Slot 0 is the newest entry in the killfeed stack.
func assignStackSlots(boxes []scoredBox, frameIndex int, timeSec float64) []Detection {
	if len(boxes) == 0 {
		return nil
	}
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].rect.Min.X > boxes[j].rect.Min.X
	})

	dets := make([]Detection, 0, len(boxes))
	for slot, b := range boxes {
		dets = append(dets, Detection{
			Frame:      frameIndex,
			TimeSec:    timeSec,
			X:          b.rect.Min.X,
			Y:          b.rect.Min.Y,
			Width:      b.rect.Dx(),
			Height:     b.rect.Dy(),
			StackSlot:  slot,
			Confidence: b.confidence,
		})
	}
	return dets
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
