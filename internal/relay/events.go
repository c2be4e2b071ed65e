package relay

import (
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
)

// Event type discriminators used on the duplex channel.
const (
	// Inbound (client -> server).
	EventFrame = "frame"
	EventPing  = "ping"

	// Outbound (server -> client).
	EventPong           = "pong"
	EventAnalysis       = "analysis"
	EventHint           = "hint"
	EventNewHelpRequest = "new_help_request"
	EventHelpResolved   = "help_resolved"
	EventError          = "error"
)

// Event is the JSON envelope exchanged over a session's duplex channel.
// Type selects which of the optional fields are meaningful.
type Event struct {
	Type string `json:"type"`

	// frame
	ImageB64 string `json:"image_b64,omitempty"`

	// analysis
	Analysis string `json:"analysis,omitempty"`

	// hint
	Hint string `json:"hint,omitempty"`

	// new_help_request / help_resolved
	RequestID string `json:"id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question,omitempty"`
	Answer    string `json:"answer,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// AnalysisEvent wraps a frame-analysis result for delivery to the client.
func AnalysisEvent(analysis string) Event {
	return Event{Type: EventAnalysis, Analysis: analysis}
}

// HintEvent wraps an advisory message for the client. Hints are
// non-critical; losing one has no effect on correctness.
func HintEvent(hint string) Event {
	return Event{Type: EventHint, Hint: hint}
}

// NewHelpRequestEvent announces a pending help request to supervisor
// observers.
func NewHelpRequestEvent(req *domain.HelpRequest) Event {
	return Event{
		Type:      EventNewHelpRequest,
		RequestID: req.ID,
		SessionID: req.SessionID,
		Question:  req.Question,
		CreatedAt: req.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HelpResolvedEvent carries a supervisor's answer back to the session that
// raised the request.
func HelpResolvedEvent(req *domain.HelpRequest) Event {
	return Event{
		Type:      EventHelpResolved,
		RequestID: req.ID,
		Answer:    req.Answer,
	}
}
