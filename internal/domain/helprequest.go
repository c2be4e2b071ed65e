package domain

import (
	"time"
)

// HelpRequestStatus is the lifecycle state of a help request.
type HelpRequestStatus string

const (
	// HelpRequestPending means no supervisor has answered yet.
	HelpRequestPending HelpRequestStatus = "pending"
	// HelpRequestResolved means a supervisor has supplied an answer.
	HelpRequestResolved HelpRequestStatus = "resolved"
)

// HelpRequest is a question the assistant escalated to a human supervisor.
// It transitions pending -> resolved at most once and is never deleted;
// resolved requests are retained for audit.
type HelpRequest struct {
	ID         string
	SessionID  string
	Question   string
	Status     HelpRequestStatus
	Answer     string
	CreatedAt  time.Time
	ResolvedAt time.Time

	// Delivered reports whether the answer reached the owning session's
	// live channel. A resolved request with Delivered=false is replayed
	// when the session reconnects with the same id.
	Delivered bool
}

// Resolved reports whether the request has been answered.
func (r *HelpRequest) Resolved() bool {
	return r.Status == HelpRequestResolved
}
