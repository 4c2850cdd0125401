package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerFinishesExactlyOnce(t *testing.T) {
	for _, terminal := range []MessageType{TypeCompleted, TypeStopped, TypeError} {
		t.Run(string(terminal), func(t *testing.T) {
			calls := 0
			var final State
			tr := NewTracker("s1", func(s State) {
				calls++
				final = s
			})

			assert.False(t, tr.Apply(NewUpdate(TypeProgress, "Analyzing", 10)))
			assert.True(t, tr.State().Generating)

			assert.True(t, tr.Apply(NewUpdate(terminal, "end", 100)))
			// duplicates and late messages are ignored
			assert.False(t, tr.Apply(NewUpdate(terminal, "end", 100)))
			assert.False(t, tr.Apply(NewUpdate(TypeError, "late", 0)))
			assert.False(t, tr.Apply(NewUpdate(TypeProgress, "late", 50)))

			require.Equal(t, 1, calls)
			assert.False(t, final.Generating)
			assert.Equal(t, string(terminal), final.Status)
			assert.Equal(t, final, tr.State())
		})
	}
}

func TestTrackerFoldsFileProgress(t *testing.T) {
	tr := NewTracker("s1", nil)

	tr.Apply(Update{Type: TypeFileCreated, CurrentFile: "src/main.tsx", Progress: 45, TotalFiles: 4, CompletedFiles: 1})
	tr.Apply(Update{Type: TypePaused, Message: "Generation paused"})
	assert.Equal(t, "paused", tr.State().Status)
	tr.Apply(Update{Type: TypeResumed, Message: "Generation resumed"})
	// an out-of-order older progress value does not move the bar backwards
	tr.Apply(Update{Type: TypeProgress, Progress: 30})
	tr.Apply(Update{Type: TypeFileUpdated, CurrentFile: "src/App.tsx", Progress: 60, TotalFiles: 4, CompletedFiles: 2})

	s := tr.State()
	assert.Equal(t, "running", s.Status)
	assert.Equal(t, 60, s.Progress)
	assert.Equal(t, 4, s.TotalFiles)
	assert.Equal(t, 2, s.CompletedFiles)
	assert.Equal(t, "src/App.tsx", s.CurrentFile)
	assert.Equal(t, []string{"src/main.tsx", "src/App.tsx"}, s.Files)
	assert.True(t, s.Generating)
}

func TestTrackerIgnoresOtherSessions(t *testing.T) {
	calls := 0
	tr := NewTracker("s1", func(State) { calls++ })

	assert.False(t, tr.Apply(Update{Type: TypeCompleted, SessionID: "s2", Progress: 100}))
	assert.Equal(t, 0, calls)
	assert.True(t, tr.Apply(Update{Type: TypeError, SessionID: "s1", Message: "provider failed"}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "provider failed", tr.State().Err)
}

func TestTrackerAsListener(t *testing.T) {
	done := 0
	tr := NewTracker("s1", func(State) { done++ })
	l := tr.Listener()
	l(NewUpdate(TypeStopped, "stopped", 40))
	l(NewUpdate(TypeStopped, "stopped", 40))
	assert.Equal(t, 1, done)
}
