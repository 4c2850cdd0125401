// Package progress holds the AI generation progress wire format and a
// reconnecting WebSocket client for it.
package progress

import "time"

// MessageType is the "type" field of a server-to-client progress message.
type MessageType string

const (
	TypeProgress    MessageType = "progress"
	TypeFileCreated MessageType = "file_created"
	TypeFileUpdated MessageType = "file_updated"
	TypeError       MessageType = "error"
	TypeCompleted   MessageType = "completed"
	TypeStopped     MessageType = "stopped"

	// Acknowledgements sent by the server.
	TypeConnected MessageType = "connected"
	TypePaused    MessageType = "paused"
	TypeResumed   MessageType = "resumed"

	// Wildcard registers a listener for every message type.
	Wildcard MessageType = "*"
)

// Terminal reports whether the message ends a generation session.
func (t MessageType) Terminal() bool {
	return t == TypeCompleted || t == TypeStopped || t == TypeError
}

// Update is one progress message.
type Update struct {
	Type           MessageType    `json:"type"`
	Message        string         `json:"message"`
	Progress       int            `json:"progress"`
	CurrentFile    string         `json:"currentFile,omitempty"`
	TotalFiles     int            `json:"totalFiles,omitempty"`
	CompletedFiles int            `json:"completedFiles,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
}

// NewUpdate stamps an update with the current UTC time.
func NewUpdate(t MessageType, message string, progress int) Update {
	return Update{Type: t, Message: message, Progress: progress, Timestamp: time.Now().UTC()}
}

// CommandType is the "type" field of a client-to-server command.
type CommandType string

const (
	CommandStop   CommandType = "stop_ai"
	CommandPause  CommandType = "pause_ai"
	CommandResume CommandType = "resume_ai"
)

// Command is sent by the client to control a running session. Data is always an object.
type Command struct {
	Type CommandType    `json:"type"`
	Data map[string]any `json:"data"`
}
