package progress

import "sync"

// State is the client-side view of a generation session.
type State struct {
	SessionID      string
	Status         string
	Generating     bool
	Progress       int
	Message        string
	CurrentFile    string
	TotalFiles     int
	CompletedFiles int
	Files          []string
	Err            string
}

// Tracker folds updates into State. The first completed, stopped or error
// update ends generation and fires onFinish; later updates are ignored.
type Tracker struct {
	mu       sync.Mutex
	state    State
	finished bool
	onFinish func(State)
}

func NewTracker(sessionID string, onFinish func(State)) *Tracker {
	return &Tracker{
		state:    State{SessionID: sessionID, Status: "running", Generating: true},
		onFinish: onFinish,
	}
}

// Listener adapts the tracker for Client.On(Wildcard, ...).
func (t *Tracker) Listener() Listener {
	return func(u Update) { t.Apply(u) }
}

// Apply folds u into the state and reports whether it ended the session.
func (t *Tracker) Apply(u Update) bool {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return false
	}
	if u.SessionID != "" && t.state.SessionID != "" && u.SessionID != t.state.SessionID {
		t.mu.Unlock()
		return false
	}

	s := &t.state
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.Progress > s.Progress || u.Type == TypeCompleted {
		s.Progress = u.Progress
	}
	if u.TotalFiles > 0 {
		s.TotalFiles = u.TotalFiles
	}
	if u.CompletedFiles > s.CompletedFiles {
		s.CompletedFiles = u.CompletedFiles
	}
	if u.CurrentFile != "" {
		s.CurrentFile = u.CurrentFile
	}

	switch u.Type {
	case TypeFileCreated, TypeFileUpdated:
		if u.CurrentFile != "" {
			s.Files = append(s.Files, u.CurrentFile)
		}
	case TypePaused:
		s.Status = "paused"
	case TypeResumed:
		s.Status = "running"
	case TypeCompleted:
		s.Status = "completed"
	case TypeStopped:
		s.Status = "stopped"
	case TypeError:
		s.Status = "error"
		s.Err = u.Message
	}

	if !u.Type.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.finished = true
	s.Generating = false
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	if t.onFinish != nil {
		t.onFinish(snapshot)
	}
	return true
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() State {
	s := t.state
	s.Files = append([]string(nil), t.state.Files...)
	return s
}
