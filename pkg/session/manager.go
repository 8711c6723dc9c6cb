package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Factory builds the booth for a new session ID.
type Factory func(ctx context.Context, sessionID string) (ports.BoothSession, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates booth sessions, ensuring operations on one session are serialized.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.SessionStore
	factory Factory

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking of session operations.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new Session Manager keeping booths in store.
func NewManager(store ports.SessionStore, factory Factory, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		factory: factory,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Create builds a booth under a fresh ID and stores it.
func (m *Manager) Create(ctx context.Context) (string, ports.BoothSession, error) {
	return m.CreateWithID(ctx, uuid.NewString())
}

// CreateWithID builds a booth under sessionID, closing any booth already stored there.
func (m *Manager) CreateWithID(ctx context.Context, sessionID string) (string, ports.BoothSession, error) {
	if sessionID == "" {
		return "", nil, errors.New("session id is required")
	}

	var booth ports.BoothSession
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if prev, err := m.store.Load(ctx, sessionID); err == nil {
			m.closeBooth(ctx, sessionID, prev)
		}

		var err error
		booth, err = m.factory(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := m.store.Save(ctx, sessionID, booth); err != nil {
			m.closeBooth(ctx, sessionID, booth)
			return fmt.Errorf("failed to store session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	m.logger.Info("session created", "session_id", sessionID)
	return sessionID, booth, nil
}

// Get returns the booth stored under sessionID.
func (m *Manager) Get(ctx context.Context, sessionID string) (ports.BoothSession, error) {
	booth, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}
	return booth, nil
}

// Do runs fn on the booth while holding the session lock.
func (m *Manager) Do(ctx context.Context, sessionID string, fn func(context.Context, ports.BoothSession) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		booth, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("session %q: %w", sessionID, err)
		}
		return fn(ctx, booth)
	})
}

// Delete closes the booth and removes it from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		booth, err := m.store.Load(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("session %q: %w", sessionID, err)
		}
		if err != nil {
			return err
		}
		m.closeBooth(ctx, sessionID, booth)
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Close closes and removes every stored booth.
func (m *Manager) Close(ctx context.Context) error {
	ids, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeBooth(ctx context.Context, sessionID string, booth ports.BoothSession) {
	if err := booth.Close(ctx); err != nil {
		m.logger.Warn("Failed to close session", "session_id", sessionID, "err", err)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "session:"+sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
