package protocol

import "time"

// Range is a span of rune offsets into a document.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SpeakRequest asks the reader to read a document aloud.
type SpeakRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
	Cursor    int    `json:"cursor"`
	Selection *Range `json:"selection,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Language  string `json:"language,omitempty"`
}

// StopRequest stops the active session. An empty id stops whatever is playing.
type StopRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// Highlight is published whenever the spoken word changes.
type Highlight struct {
	SessionID string    `json:"session_id"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	Clear     bool      `json:"clear,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session states reported on SubjectStatus.
const (
	StateStarted    = "started"
	StateRecovering = "recovering"
	StateCompleted  = "completed"
	StateStopped    = "stopped"
	StateFailed     = "failed"
)

// SessionStatus reports session lifecycle changes.
type SessionStatus struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Chunks    int       `json:"chunks,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSpeak     = "reader.speak"
	SubjectStop      = "reader.stop"
	SubjectHighlight = "reader.highlight"
	SubjectStatus    = "reader.status"
)
