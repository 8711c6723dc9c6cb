package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	counting := PhaseCounting
	awaiting := PhaseAwaitingCapture
	idle := PhaseIdle
	yes := true
	no := false
	three := 3
	zero := 0

	tests := []struct {
		name     string
		old      *SessionState
		new      *SessionState
		wantDiff *StateDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &SessionState{
				SessionID:      "sess-1",
				Phase:          PhaseAwaitingCapture,
				StreamID:       "stream-1",
				CapturedImages: []CapturedImage{{Index: 0}},
			},
			wantDiff: &StateDiff{
				SessionID:   "sess-1",
				Phase:       &awaiting,
				IsCapturing: &no,
				Remaining:   &zero,
				HasStream:   &yes,
				Images:      &ImagesDelta{Appended: []int{0}, Count: 1},
			},
		},
		{
			name:     "No Changes",
			old:      &SessionState{SessionID: "sess-1", Phase: PhaseAwaitingCapture, StreamID: "s"},
			new:      &SessionState{SessionID: "sess-1", Phase: PhaseAwaitingCapture, StreamID: "s"},
			wantDiff: nil,
		},
		{
			name: "Countdown Starts",
			old:  &SessionState{SessionID: "sess-1", Phase: PhaseAwaitingCapture, StreamID: "s"},
			new:  &SessionState{SessionID: "sess-1", Phase: PhaseCounting, StreamID: "s", IsCapturing: true, Remaining: 3},
			wantDiff: &StateDiff{
				SessionID:   "sess-1",
				Phase:       &counting,
				IsCapturing: &yes,
				Remaining:   &three,
			},
		},
		{
			name: "Capture Appended",
			old: &SessionState{SessionID: "sess-1", Phase: PhaseCounting,
				CapturedImages: []CapturedImage{{Index: 0}}},
			new: &SessionState{SessionID: "sess-1", Phase: PhaseCounting,
				CapturedImages: []CapturedImage{{Index: 0}, {Index: 1}}},
			wantDiff: &StateDiff{
				SessionID: "sess-1",
				Images:    &ImagesDelta{Appended: []int{1}, Count: 2},
			},
		},
		{
			name: "Restart Resets Images",
			old: &SessionState{SessionID: "sess-1", Phase: PhaseSessionComplete,
				CapturedImages: []CapturedImage{{Index: 0}, {Index: 1}}},
			new: &SessionState{SessionID: "sess-1", Phase: PhaseIdle},
			wantDiff: &StateDiff{
				SessionID: "sess-1",
				Phase:     &idle,
				Images:    &ImagesDelta{Reset: true, Count: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			assert.Equal(t, tt.wantDiff, got)
		})
	}
}

func TestDiff_NilNew(t *testing.T) {
	assert.Nil(t, Diff(&SessionState{}, nil))
}

func TestDiff_JSONOmitsUnchanged(t *testing.T) {
	old := &SessionState{SessionID: "s", Phase: PhaseAwaitingCapture}
	next := &SessionState{SessionID: "s", Phase: PhaseAwaitingCapture, LastError: "Camera access was denied."}

	diff := Diff(old, next)
	require.NotNil(t, diff)

	raw, err := json.Marshal(diff)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s","last_error":"Camera access was denied."}`, string(raw))
}
