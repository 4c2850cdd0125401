package client

import (
	"context"
	"sync"
	"time"
)

const DefaultAutosaveDelay = 2 * time.Second

// SaveFunc persists the content of one file.
type SaveFunc func(ctx context.Context, fileID, content string) error

// Autosaver saves the latest content of each file once the file has been idle
// for the configured delay after its last Touch.
type Autosaver struct {
	delay   time.Duration
	save    SaveFunc
	onError func(fileID string, err error)

	mu      sync.Mutex
	pending map[string]*pendingSave
	saving  map[string]*fileLock
	closed  bool
}

// fileLock keeps saves of one file in Touch order.
type fileLock struct {
	mu   sync.Mutex
	refs int
}

type pendingSave struct {
	content string
	timer   *time.Timer
}

type AutosaveOption func(*Autosaver)

// OnSaveError is called when a timer-driven save fails.
func OnSaveError(fn func(fileID string, err error)) AutosaveOption {
	return func(a *Autosaver) { a.onError = fn }
}

func NewAutosaver(delay time.Duration, save SaveFunc, opts ...AutosaveOption) *Autosaver {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	a := &Autosaver{
		delay:   delay,
		save:    save,
		pending: make(map[string]*pendingSave),
		saving:  make(map[string]*fileLock),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Touch records new unsaved content and restarts the idle timer of the file.
func (a *Autosaver) Touch(fileID, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if p, ok := a.pending[fileID]; ok {
		p.content = content
		p.timer.Reset(a.delay)
		return
	}
	a.pending[fileID] = &pendingSave{
		content: content,
		timer:   time.AfterFunc(a.delay, func() { a.fire(fileID) }),
	}
}

// Pending reports whether fileID has content that is not saved yet.
func (a *Autosaver) Pending(fileID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[fileID]
	return ok
}

func (a *Autosaver) take(fileID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[fileID]
	if !ok {
		return "", false
	}
	p.timer.Stop()
	delete(a.pending, fileID)
	return p.content, true
}

func (a *Autosaver) lockFile(fileID string) (unlock func()) {
	a.mu.Lock()
	l, ok := a.saving[fileID]
	if !ok {
		l = &fileLock{}
		a.saving[fileID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(a.saving, fileID)
		}
		a.mu.Unlock()
	}
}

func (a *Autosaver) fire(fileID string) {
	unlock := a.lockFile(fileID)
	defer unlock()
	content, ok := a.take(fileID)
	if !ok {
		return
	}
	if err := a.save(context.Background(), fileID, content); err != nil && a.onError != nil {
		a.onError(fileID, err)
	}
}

// Flush saves all pending content now and returns the first error.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := a.flushOne(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *Autosaver) flushOne(ctx context.Context, fileID string) error {
	unlock := a.lockFile(fileID)
	defer unlock()
	content, ok := a.take(fileID)
	if !ok {
		return nil
	}
	return a.save(ctx, fileID, content)
}

// Close stops all timers and drops unsaved content; call Flush first to keep it.
func (a *Autosaver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for id, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, id)
	}
}
