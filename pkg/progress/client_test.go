package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// wsServer upgrades requests and hands each connection to handle. Requests
// arriving after refuseAfter connections are rejected with 503.
type wsServer struct {
	*httptest.Server
	handle      func(n int, conn *websocket.Conn)
	refuseAfter int32

	requests atomic.Int32
	mu       sync.Mutex
	arrivals []time.Time
	queries  []string
}

func newWSServer(t *testing.T, refuseAfter int32, handle func(n int, conn *websocket.Conn)) *wsServer {
	s := &wsServer{handle: handle, refuseAfter: refuseAfter}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)
		s.mu.Lock()
		s.arrivals = append(s.arrivals, time.Now())
		s.queries = append(s.queries, r.URL.RawQuery)
		s.mu.Unlock()
		if s.refuseAfter > 0 && n > s.refuseAfter {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.handle(int(n), conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) arrivalTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.arrivals...)
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not finish")
	}
}

func TestProgressURL(t *testing.T) {
	u, err := progressURL("https://api.lumnicode.dev/", "p1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.lumnicode.dev/ws/ai-progress/p1?session=s1", u)

	u, err = progressURL("http://localhost:8000", "p1", "s 1")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/ai-progress/p1?session=s+1", u)

	_, err = progressURL("ftp://x", "p", "s")
	require.Error(t, err)
}

func TestDispatchByTypeAndWildcard(t *testing.T) {
	srv := newWSServer(t, 0, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteJSON(NewUpdate(TypeProgress, "Analyzing", 10))
		_ = conn.WriteJSON(Update{Type: TypeFileCreated, CurrentFile: "src/App.tsx", Progress: 45})
		_ = conn.WriteJSON(NewUpdate(TypeCompleted, "done", 100))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})

	c, err := NewClient(srv.URL, "p1", "s1")
	require.NoError(t, err)

	var mu sync.Mutex
	var all []MessageType
	var files []string
	c.On(Wildcard, func(u Update) {
		mu.Lock()
		all = append(all, u.Type)
		mu.Unlock()
	})
	c.On(TypeFileCreated, func(u Update) {
		mu.Lock()
		files = append(files, u.CurrentFile)
		mu.Unlock()
	})
	off := c.On(TypeCompleted, func(Update) { t.Error("unsubscribed listener called") })
	off()

	require.NoError(t, c.Connect(context.Background()))
	waitDone(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []MessageType{TypeProgress, TypeFileCreated, TypeCompleted}, all)
	assert.Equal(t, []string{"src/App.tsx"}, files)
	assert.EqualValues(t, 1, srv.requests.Load(), "normal close must not reconnect")
}

func TestReconnectsWithLinearBackoffThenGivesUp(t *testing.T) {
	const step = 20 * time.Millisecond
	srv := newWSServer(t, 1, func(_ int, conn *websocket.Conn) {
		// Drop the TCP connection without a close frame (abnormal closure).
		_ = conn.UnderlyingConn().Close()
	})

	c, err := NewClient(srv.URL, "p1", "s1", WithReconnectDelay(step))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	waitDone(t, c)

	arrivals := srv.arrivalTimes()
	require.Len(t, arrivals, 1+DefaultMaxReconnectAttempts)
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		assert.GreaterOrEqual(t, gap, step*time.Duration(i), "attempt %d", i)
	}

	time.Sleep(10 * step)
	assert.EqualValues(t, 1+DefaultMaxReconnectAttempts, srv.requests.Load())
	assert.False(t, c.Connected())
}

func TestReconnectRestoresStream(t *testing.T) {
	srv := newWSServer(t, 0, func(n int, conn *websocket.Conn) {
		if n == 1 {
			_ = conn.UnderlyingConn().Close()
			return
		}
		_ = conn.WriteJSON(NewUpdate(TypeStopped, "stopped by user", 40))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})

	c, err := NewClient(srv.URL, "p1", "s1", WithReconnectDelay(5*time.Millisecond), WithToken("tok"))
	require.NoError(t, err)
	got := make(chan Update, 1)
	c.On(TypeStopped, func(u Update) { got <- u })

	require.NoError(t, c.Connect(context.Background()))
	select {
	case u := <-got:
		assert.Equal(t, "stopped by user", u.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after reconnect")
	}
	waitDone(t, c)
	assert.EqualValues(t, 2, srv.requests.Load())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Contains(t, srv.queries[1], "token=tok")
	assert.Contains(t, srv.queries[1], "session=s1")
}

func TestDisconnectIsNormalAndFinal(t *testing.T) {
	closeCode := make(chan int, 1)
	srv := newWSServer(t, 0, func(_ int, conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			closeCode <- ce.Code
		} else {
			closeCode <- -1
		}
	})

	c, err := NewClient(srv.URL, "p1", "s1", WithReconnectDelay(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Disconnect())
	select {
	case code := <-closeCode:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe close")
	}
	waitDone(t, c)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, srv.requests.Load())
	require.Error(t, c.Connect(context.Background()))
}

func TestCommandsSerializeAndNoopWhenClosed(t *testing.T) {
	received := make(chan Command, 3)
	srv := newWSServer(t, 0, func(_ int, conn *websocket.Conn) {
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			received <- cmd
		}
	})

	c, err := NewClient(srv.URL, "p1", "s1")
	require.NoError(t, err)

	// Not connected yet: silently ignored.
	c.Stop()
	require.ErrorIs(t, c.Send(Command{Type: CommandStop}), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	c.Pause()
	c.Resume()
	c.Stop()

	var got []CommandType
	for i := 0; i < 3; i++ {
		select {
		case cmd := <-received:
			got = append(got, cmd.Type)
			assert.NotNil(t, cmd.Data)
			assert.Empty(t, cmd.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("command not received")
		}
	}
	assert.Equal(t, []CommandType{CommandPause, CommandResume, CommandStop}, got)
	require.NoError(t, c.Disconnect())

	c.Pause()
	select {
	case cmd := <-received:
		t.Fatalf("unexpected command after disconnect: %v", cmd.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
