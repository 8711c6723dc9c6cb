package ports

import (
	"context"

	"github.com/aretw0/photobooth/pkg/domain"
)

// BoothSession is the driving port of one booth: the operations a surface
// (terminal, HTTP, MCP) invokes on the capture sequence controller.
type BoothSession interface {
	Config() domain.Config
	StartSession(ctx context.Context) error
	BeginCaptureCycle(ctx context.Context) bool
	RestartSession(ctx context.Context)
	ComposeDownload(ctx context.Context) (*domain.Artifact, error)
	Snapshot() domain.SessionState
	Close(ctx context.Context) error
}

// SessionStore keeps live booth sessions by ID.
// Sessions hold open camera handles and timers, so stores are process-local.
type SessionStore interface {
	// Save stores the session under the given ID, replacing any previous one.
	Save(ctx context.Context, sessionID string, session BoothSession) error

	// Load retrieves a session. Returns domain.ErrSessionNotFound if missing.
	Load(ctx context.Context, sessionID string) (BoothSession, error)

	// Delete removes a session. Deleting a missing ID is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
