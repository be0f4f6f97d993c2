package progress

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestTrackerAccumulates(t *testing.T) {
	tracker := NewTracker(zerolog.Nop(), false)

	tracker.FrameProcessed(0, 2, time.Millisecond)
	tracker.FrameProcessed(10, 0, time.Millisecond)
	tracker.FrameProcessed(20, 3, time.Millisecond)
	tracker.EventsCreated(2)

	assert.Equal(t, 3, tracker.Stats.FramesProcessed)
	assert.Equal(t, 5, tracker.Stats.DetectionsFound)
	assert.Equal(t, 2, tracker.Stats.EventsCreated)
	assert.Greater(t, tracker.Stats.ProcessingSpeed, 0.0)
}
