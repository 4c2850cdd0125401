package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeAPI) record(r *http.Request) recorded {
	rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	return rec
}

func (f *fakeAPI) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
}

func newServer(t *testing.T, h func(w http.ResponseWriter, rec recorded)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, api.record(r))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, WithToken("tok")), api
}

func TestCreateProjectSinglePost(t *testing.T) {
	c, api := newServer(t, func(w http.ResponseWriter, rec recorded) {
		writeEnvelope(w, http.StatusCreated, map[string]any{
			"id": "p1", "name": rec.body["name"], "description": rec.body["description"], "status": "active",
		})
	})

	p, err := c.CreateProject(context.Background(), CreateProjectInput{Name: "Todo", Description: "a list"})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Todo", p.Name)

	reqs := api.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/api/v1/projects", reqs[0].path)
	assert.Equal(t, "Bearer tok", reqs[0].auth)
	assert.Equal(t, "Todo", reqs[0].body["name"])
	assert.Equal(t, "a list", reqs[0].body["description"])
}

func TestListProjectsQueryAndMeta(t *testing.T) {
	c, api := newServer(t, func(w http.ResponseWriter, _ recorded) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"a"},{"id":"b"}],"meta":{"page":2,"page_size":2,"total":5}}`))
	})

	items, page, err := c.ListProjects(context.Background(), ListProjectsOptions{Page: 2, PageSize: 2, Search: "todo"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.NotNil(t, page)
	assert.Equal(t, int64(5), page.Total)
	q, err := url.ParseQuery(api.all()[0].query)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"page": {"2"}, "page_size": {"2"}, "search": {"todo"}}, q)
}

func TestErrorEnvelope(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, _ recorded) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"conflict","message":"generation already running"}}`))
	})

	_, err := c.Generate(context.Background(), "p1", "build it", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, StatusOf(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "conflict", apiErr.Code)
}

func TestErrorWithoutEnvelope(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, _ recorded) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), "upstream down")
}

func TestDeleteNoContent(t *testing.T) {
	c, api := newServer(t, func(w http.ResponseWriter, _ recorded) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteFile(context.Background(), "f1"))
	assert.Equal(t, http.MethodDelete, api.all()[0].method)
	assert.Equal(t, "/api/v1/files/f1", api.all()[0].path)
}

func TestSessionActions(t *testing.T) {
	c, api := newServer(t, func(w http.ResponseWriter, _ recorded) {
		writeEnvelope(w, http.StatusOK, map[string]any{"id": "s1", "status": "paused"})
	})

	s, err := c.PauseSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "paused", s.Status)
	assert.Equal(t, "/api/v1/ai/session/s1/pause", api.all()[0].path)
}

func TestFileSetRemoveSelection(t *testing.T) {
	files := []File{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	t.Run("selected falls to next", func(t *testing.T) {
		fs := NewFileSet(files)
		require.True(t, fs.Select("b"))
		require.True(t, fs.Remove("b"))
		sel, ok := fs.Selected()
		require.True(t, ok)
		assert.Equal(t, "c", sel.ID)
		assert.Equal(t, 2, fs.Len())
	})

	t.Run("selected last falls to previous", func(t *testing.T) {
		fs := NewFileSet(files)
		require.True(t, fs.Select("c"))
		fs.Remove("c")
		sel, _ := fs.Selected()
		assert.Equal(t, "b", sel.ID)
	})

	t.Run("unselected keeps selection", func(t *testing.T) {
		fs := NewFileSet(files)
		require.True(t, fs.Select("c"))
		fs.Remove("a")
		sel, _ := fs.Selected()
		assert.Equal(t, "c", sel.ID)
	})

	t.Run("last file leaves empty state", func(t *testing.T) {
		fs := NewFileSet([]File{{ID: "only"}})
		fs.Remove("only")
		_, ok := fs.Selected()
		assert.False(t, ok)
		assert.False(t, fs.Remove("only"))
	})

	t.Run("put appends and selects", func(t *testing.T) {
		fs := NewFileSet(nil)
		_, ok := fs.Selected()
		assert.False(t, ok)
		fs.Put(File{ID: "n", Name: "new.ts"})
		sel, ok := fs.Selected()
		require.True(t, ok)
		assert.Equal(t, "n", sel.ID)
		fs.Put(File{ID: "n", Name: "renamed.ts"})
		assert.Equal(t, "renamed.ts", fs.Files()[0].Name)
	})
}

type saveLog struct {
	mu    sync.Mutex
	saves []string
}

func (s *saveLog) save(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, id+"="+content)
	return nil
}

func (s *saveLog) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

func TestAutosaverDebounces(t *testing.T) {
	log := &saveLog{}
	a := NewAutosaver(40*time.Millisecond, log.save)
	defer a.Close()

	a.Touch("f1", "a")
	time.Sleep(10 * time.Millisecond)
	a.Touch("f1", "ab")
	time.Sleep(10 * time.Millisecond)
	a.Touch("f1", "abc")
	assert.True(t, a.Pending("f1"))

	require.Eventually(t, func() bool { return len(log.list()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"f1=abc"}, log.list())
	assert.False(t, a.Pending("f1"))
}

func TestAutosaverFlushAndClose(t *testing.T) {
	log := &saveLog{}
	a := NewAutosaver(time.Hour, log.save)

	a.Touch("f1", "x")
	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, []string{"f1=x"}, log.list())

	a.Touch("f2", "y")
	a.Close()
	a.Touch("f3", "z")
	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, []string{"f1=x"}, log.list())
}

func TestAutosaverReportsErrors(t *testing.T) {
	var failed atomic.Int32
	a := NewAutosaver(5*time.Millisecond,
		func(context.Context, string, string) error { return assert.AnError },
		OnSaveError(func(string, error) { failed.Add(1) }),
	)
	defer a.Close()

	a.Touch("f1", "x")
	require.Eventually(t, func() bool { return failed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAutosaverKeepsSavesOfOneFileInOrder(t *testing.T) {
	log := &saveLog{}
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	a := NewAutosaver(5*time.Millisecond, func(ctx context.Context, id, content string) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return log.save(ctx, id, content)
	})
	defer a.Close()

	a.Touch("f1", "old")
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first save never started")
	}
	a.Touch("f1", "new")
	// let the second timer fire while the first save is still in flight
	time.Sleep(30 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return len(log.list()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"f1=old", "f1=new"}, log.list())
}
