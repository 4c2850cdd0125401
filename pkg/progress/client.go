package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectAttempts = 5

	writeTimeout = 10 * time.Second
)

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("progress: socket not connected")

// Listener receives decoded updates. Listeners run on the client's read goroutine.
type Listener func(Update)

type Option func(*Client)

// WithToken passes a bearer token as the "token" query parameter.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithReconnectDelay sets the linear backoff step; attempt n waits n*step.
func WithReconnectDelay(step time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = step }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client keeps one progress socket for a project/session pair open, dispatching
// messages to listeners and reconnecting after abnormal closures.
type Client struct {
	endpoint       string
	token          string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	maxAttempts    int
	log            *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	attempts     int
	intentional  bool
	reconnecting *time.Timer
	done         chan struct{}
	doneOnce     sync.Once

	writeMu sync.Mutex

	lmu       sync.RWMutex
	listeners map[MessageType]map[uint64]Listener
	nextID    uint64
}

// NewClient builds a client for baseURL (http, https, ws or wss).
func NewClient(baseURL, projectID, sessionID string, opts ...Option) (*Client, error) {
	endpoint, err := progressURL(baseURL, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:       endpoint,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		maxAttempts:    DefaultMaxReconnectAttempts,
		log:            zap.NewNop(),
		done:           make(chan struct{}),
		listeners:      map[MessageType]map[uint64]Listener{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func progressURL(baseURL, projectID, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("progress: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("progress: unsupported scheme %q", u.Scheme)
	}
	u.Path = u.Path + "/ws/ai-progress/" + url.PathEscape(projectID)
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// On registers fn for messages of type t, or every message when t is Wildcard.
// The returned func removes the registration.
func (c *Client) On(t MessageType, fn Listener) func() {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	id := c.nextID
	if c.listeners[t] == nil {
		c.listeners[t] = map[uint64]Listener{}
	}
	c.listeners[t][id] = fn
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		delete(c.listeners[t], id)
	}
}

func (c *Client) dispatch(u Update) {
	c.lmu.RLock()
	var fns []Listener
	for _, fn := range c.listeners[u.Type] {
		fns = append(fns, fn)
	}
	for _, fn := range c.listeners[Wildcard] {
		fns = append(fns, fn)
	}
	c.lmu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}

// Connect dials the socket. A failed first dial is returned to the caller and
// does not schedule reconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return errors.New("progress: client disconnected")
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := c.endpoint
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
		u, _ := url.Parse(endpoint)
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("progress: dial: %w", err)
	}
	return conn, nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.log.Debug("progress socket open", zap.String("url", c.endpoint))
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		var u Update
		if err := json.Unmarshal(data, &u); err != nil {
			c.log.Warn("progress message decode failed", zap.Error(err))
			continue
		}
		c.dispatch(u)
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if conn != nil && c.conn == conn {
		c.conn = nil
		_ = conn.Close()
	}
	if c.intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.mu.Unlock()
		c.finish()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.mu.Unlock()
		c.log.Warn("progress reconnect attempts exhausted", zap.Int("attempts", c.maxAttempts), zap.Error(err))
		c.finish()
		return
	}
	c.attempts++
	delay := c.reconnectDelay * time.Duration(c.attempts)
	attempt := c.attempts
	c.reconnecting = time.AfterFunc(delay, c.reconnect)
	c.mu.Unlock()

	c.log.Info("progress socket closed, reconnecting",
		zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnecting = nil
	stop := c.intentional
	c.mu.Unlock()
	if stop {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	conn, err := c.dial(ctx)
	if err != nil {
		c.handleClose(nil, err)
		return
	}
	c.attach(conn)
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed once the client stops for good: after Disconnect, a normal
// server close, or when reconnect attempts run out.
func (c *Client) Done() <-chan struct{} { return c.done }

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Disconnect closes the socket with code 1000. The client never reconnects afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.intentional = true
	if c.reconnecting != nil {
		c.reconnecting.Stop()
		c.reconnecting = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	defer c.finish()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	_ = conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("progress: close: %w", err)
	}
	return nil
}

// Send writes a command to the open socket.
func (c *Client) Send(cmd Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if cmd.Data == nil {
		cmd.Data = map[string]any{}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(cmd)
}

// Stop, Pause and Resume send the matching command and silently do nothing
// when the socket is not open.
func (c *Client) Stop() { c.sendQuiet(CommandStop) }

func (c *Client) Pause() { c.sendQuiet(CommandPause) }

func (c *Client) Resume() { c.sendQuiet(CommandResume) }

func (c *Client) sendQuiet(t CommandType) {
	if err := c.Send(Command{Type: t}); err != nil && !errors.Is(err, ErrNotConnected) {
		c.log.Warn("progress command failed", zap.String("type", string(t)), zap.Error(err))
	}
}
