// Package help implements the human-escalation queue and the broadcast
// router that fans queue transitions out to the right audience.
package help

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Resolve for an unknown request id.
	ErrNotFound = errors.New("help request not found")
	// ErrAlreadyResolved is returned by Resolve when the request has
	// already been answered. Exactly one concurrent resolve on a given id
	// succeeds; the rest observe this error.
	ErrAlreadyResolved = errors.New("help request already resolved")
)

// auditWriteTimeout bounds best-effort audit writes to the store.
const auditWriteTimeout = 5 * time.Second

// Auditor persists help-request transitions for audit. Satisfied by
// store.Repository. Audit writes are best-effort: a failed write is logged,
// never surfaced.
type Auditor interface {
	SaveHelpRequest(ctx context.Context, req *domain.HelpRequest) error
}

// Queue is the shared state machine of help requests. It is the sole owner
// of request state: create and resolve are serialized per id, so two
// concurrent resolves on one id cannot both succeed. Requests are never
// deleted, only transitioned.
type Queue struct {
	mu       sync.Mutex
	requests map[string]*domain.HelpRequest
	order    []string // insertion order for listing

	audit Auditor
}

// NewQueue creates an empty queue. audit may be nil.
func NewQueue(audit Auditor) *Queue {
	return &Queue{
		requests: make(map[string]*domain.HelpRequest),
		audit:    audit,
	}
}

// Create records a new pending request owned by sessionID and returns a
// copy of it.
func (q *Queue) Create(sessionID, question string) *domain.HelpRequest {
	req := &domain.HelpRequest{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		Status:    domain.HelpRequestPending,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.requests[req.ID] = req
	q.order = append(q.order, req.ID)
	q.mu.Unlock()

	slog.Info("Help request created", "request_id", req.ID, "session_id", sessionID)
	q.writeAudit(req)

	out := *req
	return &out
}

// Resolve transitions a pending request to resolved, recording the answer.
// Returns a copy of the resolved request. Fails with ErrNotFound for an
// unknown id and ErrAlreadyResolved if the transition already happened.
func (q *Queue) Resolve(id, answer string) (*domain.HelpRequest, error) {
	q.mu.Lock()
	req, ok := q.requests[id]
	if !ok {
		q.mu.Unlock()
		return nil, ErrNotFound
	}
	if req.Status == domain.HelpRequestResolved {
		q.mu.Unlock()
		return nil, ErrAlreadyResolved
	}
	req.Status = domain.HelpRequestResolved
	req.Answer = answer
	req.ResolvedAt = time.Now()
	out := *req
	q.mu.Unlock()

	slog.Info("Help request resolved", "request_id", id, "session_id", out.SessionID)
	q.writeAudit(&out)

	return &out, nil
}

// ListPending returns copies of all pending requests, oldest first.
func (q *Queue) ListPending() []*domain.HelpRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []*domain.HelpRequest
	for _, id := range q.order {
		req := q.requests[id]
		if req.Status != domain.HelpRequestPending {
			continue
		}
		out := *req
		pending = append(pending, &out)
	}
	return pending
}

// ClaimDelivery atomically claims the right to deliver the answer for a
// resolved request. It reports true only for the one caller that flips the
// request from undelivered to delivered, so concurrent delivery paths (a
// resolve racing the owner's reconnect replay) send at most one event
// between them. A claim whose send then fails must be handed back with
// ReleaseDelivery so the answer stays replayable.
func (q *Queue) ClaimDelivery(id string) bool {
	q.mu.Lock()
	req, ok := q.requests[id]
	var out domain.HelpRequest
	if ok && req.Status == domain.HelpRequestResolved && !req.Delivered {
		req.Delivered = true
		out = *req
	} else {
		ok = false
	}
	q.mu.Unlock()

	if ok {
		q.writeAudit(&out)
	}
	return ok
}

// ReleaseDelivery undoes a claim whose send failed.
func (q *Queue) ReleaseDelivery(id string) {
	q.mu.Lock()
	req, ok := q.requests[id]
	var out domain.HelpRequest
	if ok && req.Status == domain.HelpRequestResolved && req.Delivered {
		req.Delivered = false
		out = *req
	} else {
		ok = false
	}
	q.mu.Unlock()

	if ok {
		q.writeAudit(&out)
	}
}

// UndeliveredFor returns copies of resolved requests owned by sessionID
// whose answer never reached a live channel, oldest first.
func (q *Queue) UndeliveredFor(sessionID string) []*domain.HelpRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var missed []*domain.HelpRequest
	for _, id := range q.order {
		req := q.requests[id]
		if req.SessionID != sessionID || req.Status != domain.HelpRequestResolved || req.Delivered {
			continue
		}
		out := *req
		missed = append(missed, &out)
	}
	return missed
}

// Get returns a copy of the request with the given id, or nil.
func (q *Queue) Get(id string) *domain.HelpRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.requests[id]
	if !ok {
		return nil
	}
	out := *req
	return &out
}

func (q *Queue) writeAudit(req *domain.HelpRequest) {
	if q.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := q.audit.SaveHelpRequest(ctx, req); err != nil {
		slog.Warn("Failed to persist help request", "request_id", req.ID, "error", err)
	}
}
