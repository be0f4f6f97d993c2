// Package video wraps gocv video capture behind a probe/sample API with an
// explicit close contract, so callers control cancellation by simply
// stopping iteration and releasing the handle.
package video

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// ErrSourceUnavailable marks a video that is missing or cannot be opened.
// It is fatal to that video's run; batch callers catch it and move on.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Info holds source metadata read once before sampling.
type Info struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
	Duration   float64
	Codec      string
	FileSize   int64
}

// Probe opens the source just long enough to read its metadata.
func Probe(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return Info{}, fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
	}

	info := Info{
		FPS:        vc.Get(gocv.VideoCaptureFPS),
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		Codec:      DecodeFourCC(int64(vc.Get(gocv.VideoCaptureFOURCC))),
		FileSize:   st.Size(),
	}
	if info.FPS > 0 {
		info.Duration = float64(info.FrameCount) / info.FPS
	}
	return info, nil
}

// DecodeFourCC unpacks a fourcc property value into its 4-character tag.
// Returns "" when the container reports no codec.
func DecodeFourCC(fourcc int64) string {
	if fourcc == 0 {
		return ""
	}
	b := []byte{
		byte(fourcc & 0xFF),
		byte((fourcc >> 8) & 0xFF),
		byte((fourcc >> 16) & 0xFF),
		byte((fourcc >> 24) & 0xFF),
	}
	return string(b)
}

// Stride computes the frame skip for a target sampling rate:
// max(1, round(nativeFPS / sampleFPS)).
func Stride(nativeFPS, sampleFPS float64) int {
	if nativeFPS <= 0 || sampleFPS <= 0 {
		return 1
	}
	s := int(math.Round(nativeFPS / sampleFPS))
	if s < 1 {
		return 1
	}
	return s
}

// Frame is one sampled frame. Mat is a buffer owned by the Sampler and is
// overwritten by the next call to Next; clone it to retain.
type Frame struct {
	Index int
	Time  float64
	Mat   gocv.Mat
}

// Sampler lazily yields frames at indices 0, stride, 2*stride, … until end
// of stream or a decode failure. It is finite and non-restartable. Close
// must be called on every exit path.
type Sampler struct {
	cap    *gocv.VideoCapture
	buf    gocv.Mat
	fps    float64
	stride int
	next   int // next frame index to read
	closed bool
}

// NewSampler opens path for sequential sampling. fps is the native frame
// rate (from Probe); sampleFPS the target sampling rate.
func NewSampler(path string, fps, sampleFPS float64) (*Sampler, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, path)
	}
	return &Sampler{
		cap:    vc,
		buf:    gocv.NewMat(),
		fps:    fps,
		stride: Stride(fps, sampleFPS),
	}, nil
}

// Stride returns the computed frame skip.
func (s *Sampler) Stride() int { return s.stride }

// Next reads forward to the next sampled frame. It returns false at end of
// stream, after a mid-stream decode failure, or after Close; a false return
// with frames already delivered is a partial result, not an error.
func (s *Sampler) Next() (Frame, bool) {
	if s.closed {
		return Frame{}, false
	}
	for {
		if ok := s.cap.Read(&s.buf); !ok || s.buf.Empty() {
			return Frame{}, false
		}
		idx := s.next
		s.next++
		if idx%s.stride == 0 {
			t := 0.0
			if s.fps > 0 {
				t = float64(idx) / s.fps
			}
			return Frame{Index: idx, Time: t, Mat: s.buf}, true
		}
	}
}

// Close releases the capture handle and frame buffer. Safe to call more
// than once.
func (s *Sampler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf.Close()
	return s.cap.Close()
}
