package profiling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorderAccumulates(t *testing.T) {
	r := NewRecorder()
	r.Add("terrain.Update", 3*time.Millisecond)
	r.Add("terrain.Update", 2*time.Millisecond)
	r.Add("terrain.upload", time.Millisecond)
	r.Add("meshing.March", 4*time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, []Sample{
		{Name: "terrain.Update", Total: 5 * time.Millisecond, Calls: 2},
		{Name: "meshing.March", Total: 4 * time.Millisecond, Calls: 1},
		{Name: "terrain.upload", Total: time.Millisecond, Calls: 1},
	}, snap)
	assert.Equal(t, 6*time.Millisecond, r.SumWithPrefix("terrain."))
	assert.Equal(t, "terrain.Update:5.0ms, meshing.March:4.0ms", r.TopN(2))
	assert.Equal(t, r.TopN(3), r.TopN(10))

	r.Reset()
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, "", r.TopN(3))
}

func TestTrackRecordsElapsed(t *testing.T) {
	r := NewRecorder()
	stop := r.Track("sleep")
	time.Sleep(2 * time.Millisecond)
	stop()
	snap := r.Snapshot()
	if assert.Len(t, snap, 1) {
		assert.GreaterOrEqual(t, snap[0].Total, 2*time.Millisecond)
		assert.Equal(t, 1, snap[0].Calls)
	}
}

func TestDefaultRecorder(t *testing.T) {
	ResetFrame()
	Track("x")()
	assert.Len(t, Snapshot(), 1)
	assert.Same(t, std, Default())
	ResetFrame()
}
