package events

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killfeed/detection"
)

func sampleEvents() []Event {
	g := Grouper{DeltaT: 0.8, MultikillBoxes: 3}
	return g.Group([]detection.Detection{
		det(3, 0.1, 0, 0.5),
		det(15, 0.5, 0, 0.6),
		det(27, 0.9, 1, 0.7),
		det(90, 3.0, 0, 0.9),
	}, "round_trip")
}

func TestExportJSONRoundTrip(t *testing.T) {
	evs := sampleEvents()
	path := filepath.Join(t.TempDir(), "out", "events.json")

	require.NoError(t, ExportJSON(evs, path))

	doc, err := LoadJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "round_trip", doc.VideoID)
	assert.Equal(t, len(evs), doc.TotalEvents)

	if diff := cmp.Diff(evs, doc.Events, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("events changed across round trip (-want +got):\n%s", diff)
	}
}

func TestExportCSVRows(t *testing.T) {
	evs := sampleEvents()
	path := filepath.Join(t.TempDir(), "events.csv")

	require.NoError(t, ExportCSV(evs, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(evs)+1)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "round_trip", rows[1][0])
	assert.Equal(t, "3", rows[1][1])  // start_frame
	assert.Equal(t, "27", rows[1][2]) // end_frame
	assert.Equal(t, "3", rows[1][5])  // box_count
	assert.Equal(t, TagMultiKill, rows[1][8])
}

func TestExportEmptyIsNoOp(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "events.csv")
	jsonPath := filepath.Join(dir, "events.json")

	require.NoError(t, ExportCSV(nil, csvPath))
	require.NoError(t, ExportJSON(nil, jsonPath))

	_, err := os.Stat(csvPath)
	assert.True(t, os.IsNotExist(err), "empty CSV export should not create a file")
	_, err = os.Stat(jsonPath)
	assert.True(t, os.IsNotExist(err), "empty JSON export should not create a file")
}
