// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
)

// Repository defines the interface for persisting chat transcripts and the
// help-request audit trail.
type Repository interface {
	// SaveChat creates or replaces a chat transcript.
	SaveChat(ctx context.Context, chat *domain.Chat) error

	// GetChat retrieves a chat with its messages. Returns nil if absent.
	GetChat(ctx context.Context, id string) (*domain.Chat, error)

	// ListChats returns chat summaries, most recently updated first.
	ListChats(ctx context.Context) ([]domain.ChatSummary, error)

	// SaveHelpRequest creates or updates the audit record for a help
	// request.
	SaveHelpRequest(ctx context.Context, req *domain.HelpRequest) error

	// ListHelpRequests returns all audited help requests, oldest first.
	ListHelpRequests(ctx context.Context) ([]*domain.HelpRequest, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
