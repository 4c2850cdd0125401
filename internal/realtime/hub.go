package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// SessionControl is what the hub needs from the generation service.
type SessionControl interface {
	GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error)
	StopSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error)
	PauseSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error)
	ResumeSession(ctx context.Context, sessionID, userID uuid.UUID) (*models.GenerationSession, error)
}

// UserResolver returns the authenticated user of a request.
type UserResolver func(r *http.Request) (uuid.UUID, bool)

// Hub serves /ws/ai-progress/{projectId}?session=<id>.
type Hub struct {
	broker   Broker
	sessions SessionControl
	userID   UserResolver
	upgrader websocket.Upgrader
	ping     time.Duration
	log      *zap.Logger
}

func NewHub(broker Broker, sessions SessionControl, userID UserResolver, allowedOrigins []string) *Hub {
	h := &Hub{
		broker:   broker,
		sessions: sessions,
		userID:   userID,
		ping:     pingInterval,
		log:      logger.Named("hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, origin)
		},
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		types.WriteError(w, appErr.New(appErr.CodeInvalid, "invalid project id"))
		return
	}
	sessionID, err := uuid.Parse(r.URL.Query().Get("session"))
	if err != nil {
		types.WriteError(w, appErr.New(appErr.CodeInvalid, "session query parameter is required"))
		return
	}
	userID, ok := h.userID(r)
	if !ok {
		types.WriteError(w, appErr.New(appErr.CodeUnauthorized, "authentication required"))
		return
	}

	// subscribe before reading the snapshot so nothing published in between is lost
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := h.broker.Subscribe(ctx, sessionID.String())
	if err != nil {
		h.log.Error("subscribe failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		types.WriteError(w, appErr.Wrap(err, appErr.CodeUnavailable, "progress stream unavailable"))
		return
	}
	defer sub.Close()

	sess, err := h.sessions.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		types.WriteError(w, err)
		return
	}
	if sess.ProjectID != projectID {
		types.WriteError(w, appErr.New(appErr.CodeNotFound, "generation session not found"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	m := metrics.Global()
	m.ProgressClients.Inc()
	defer m.ProgressClients.Dec()

	log := h.log.With(zap.String("session_id", sessionID.String()), zap.String("user_id", userID.String()))
	log.Info("progress client connected")

	c := &client{hub: h, conn: conn, sessionID: sessionID, userID: userID, log: log}
	go c.readLoop(ctx, cancel)
	c.writeLoop(ctx, sub, sess)
	log.Info("progress client disconnected")
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID uuid.UUID
	userID    uuid.UUID
	log       *zap.Logger
}

// writeLoop is the only writer on the connection.
func (c *client) writeLoop(ctx context.Context, sub *Subscription, sess *models.GenerationSession) {
	hello := progress.NewUpdate(progress.TypeConnected, "Connected to AI progress stream", sess.Progress)
	hello.SessionID = c.sessionID.String()
	if !c.write(hello) {
		return
	}
	// late joiners get the current state right away
	snap := snapshot(sess)
	if !c.write(snap) {
		return
	}
	if snap.Type.Terminal() {
		c.closeNormal()
		return
	}

	ticker := time.NewTicker(c.hub.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if !c.write(u) {
				return
			}
			if u.Type.Terminal() {
				c.closeNormal()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(u progress.Update) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(u); err != nil {
		c.log.Debug("write failed", zap.Error(err))
		return false
	}
	return true
}

func (c *client) closeNormal() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "generation finished")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (c *client) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(64 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		var cmd progress.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.log.Warn("ignore malformed command", zap.Error(err))
			continue
		}
		c.apply(ctx, cmd)
	}
}

func (c *client) apply(ctx context.Context, cmd progress.Command) {
	var control func(context.Context, uuid.UUID, uuid.UUID) (*models.GenerationSession, error)
	switch cmd.Type {
	case progress.CommandStop:
		control = c.hub.sessions.StopSession
	case progress.CommandPause:
		control = c.hub.sessions.PauseSession
	case progress.CommandResume:
		control = c.hub.sessions.ResumeSession
	default:
		c.log.Warn("unknown command", zap.String("type", string(cmd.Type)))
		return
	}
	if _, err := control(ctx, c.sessionID, c.userID); err != nil {
		c.log.Info("command rejected", zap.String("type", string(cmd.Type)), zap.Error(err))
	}
}

// snapshot renders a stored session as the update a client would have seen last.
func snapshot(s *models.GenerationSession) progress.Update {
	t := progress.TypeProgress
	msg := s.CurrentTask
	switch s.Status {
	case models.SessionPaused:
		t = progress.TypePaused
	case models.SessionCompleted:
		t = progress.TypeCompleted
	case models.SessionStopped:
		t = progress.TypeStopped
	case models.SessionError:
		t = progress.TypeError
		msg = s.Error
	}
	u := progress.NewUpdate(t, msg, s.Progress)
	u.SessionID = s.ID.String()
	u.CurrentFile = s.CurrentFile
	u.TotalFiles = s.TotalFiles
	u.CompletedFiles = s.CompletedFiles
	return u
}
