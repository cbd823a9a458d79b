package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a stream event emitted during processing.
type EventType string

const (
	EventStart           EventType = "start"
	EventPageProcessing  EventType = "page_processing"
	EventStreaming       EventType = "streaming"
	EventPageComplete    EventType = "page_complete"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
	EventModeChange      EventType = "mode_change"
	EventCanvasCommit    EventType = "canvas_commit"
	EventBackgroundReady EventType = "background_ready"
)

// StreamEvent is delivered over channels and the session WebSocket feed
// while the studio processes documents, chat turns and canvas commits.
type StreamEvent struct {
	Type       EventType   `json:"type"`
	SessionID  uuid.UUID   `json:"sessionId"`
	PageNumber int         `json:"pageNumber,omitempty"`
	PageCount  int         `json:"pageCount,omitempty"`
	Message    string      `json:"message,omitempty"`
	Mode       SessionMode `json:"mode,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewEvent builds a stream event stamped with the current time.
func NewEvent(t EventType, sessionID uuid.UUID) StreamEvent {
	return StreamEvent{Type: t, SessionID: sessionID, Timestamp: time.Now()}
}
