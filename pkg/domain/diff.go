package domain

// StateDiff represents the changes between two session snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Phase       *Phase  `json:"phase,omitempty"`
	IsCapturing *bool   `json:"is_capturing,omitempty"`
	Remaining   *int    `json:"remaining,omitempty"`
	HasStream   *bool   `json:"has_stream,omitempty"`
	LastError   *string `json:"last_error,omitempty"`

	// Images describes how the captured list changed.
	Images *ImagesDelta `json:"images,omitempty"`
}

// ImagesDelta represents changes to the captured images.
// Captures are append-only within a session; a shrinking list means the session was reset.
type ImagesDelta struct {
	Appended []int `json:"appended,omitempty"` // indexes of new images
	Reset    bool  `json:"reset,omitempty"`
	Count    int   `json:"count"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *SessionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		SessionID: newState.SessionID,
	}

	if oldState == nil || oldState.Phase != newState.Phase {
		diff.Phase = &newState.Phase
	}
	if oldState == nil || oldState.IsCapturing != newState.IsCapturing {
		diff.IsCapturing = &newState.IsCapturing
	}
	if oldState == nil || oldState.Remaining != newState.Remaining {
		diff.Remaining = &newState.Remaining
	}
	hasStream := newState.HasStream()
	if oldState == nil || oldState.HasStream() != hasStream {
		diff.HasStream = &hasStream
	}
	if oldState == nil {
		if newState.LastError != "" {
			diff.LastError = &newState.LastError
		}
	} else if oldState.LastError != newState.LastError {
		diff.LastError = &newState.LastError
	}

	diff.Images = diffImages(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffImages(old *SessionState, new *SessionState) *ImagesDelta {
	newLen := len(new.CapturedImages)
	if old == nil {
		if newLen == 0 {
			return nil
		}
		return &ImagesDelta{Appended: indexRange(0, newLen), Count: newLen}
	}

	oldLen := len(old.CapturedImages)
	switch {
	case newLen > oldLen:
		return &ImagesDelta{Appended: indexRange(oldLen, newLen), Count: newLen}
	case newLen < oldLen:
		return &ImagesDelta{Reset: true, Count: newLen}
	}
	return nil
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Phase == nil &&
		d.IsCapturing == nil &&
		d.Remaining == nil &&
		d.HasStream == nil &&
		d.LastError == nil &&
		d.Images == nil
}
