// Package session owns the working state of one POS terminal session: the
// operator identity, the cart, and the checkout coordinator.
//
// Cart and coordinator state never outlive the session and are never
// persisted. A session serializes all operator-issued operations, which gives
// the cart its single-mutator model.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/cart"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// Session is one cashier's active terminal session.
type Session struct {
	ID        string
	Operator  checkout.Operator
	CreatedAt time.Time

	// mu serializes operator-issued operations: cart mutations apply
	// strictly in the order issued and none interleaves with a checkout.
	mu          sync.Mutex
	cart        *cart.Cart
	coordinator *checkout.Coordinator
	expiresAt   time.Time
	closed      bool
}

// Do runs fn with exclusive access to the session's cart.
func (s *Session) Do(fn func(c *cart.Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return checkout.ErrSessionInvalid
	}
	return fn(s.cart)
}

// Checkout submits the cart through the session's coordinator. The session
// lock is held for the duration, so no cart mutation can interleave with the
// submission.
func (s *Session) Checkout(ctx context.Context, method checkout.PaymentMethod) (*checkout.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, checkout.ErrSessionInvalid
	}
	return s.coordinator.Checkout(ctx, s.Operator, method)
}

// Acknowledge returns the session's coordinator to idle.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return checkout.ErrSessionInvalid
	}
	return s.coordinator.Acknowledge()
}

// CheckoutState returns the coordinator state and, when in the succeeded
// state, the receipt.
func (s *Session) CheckoutState() (checkout.State, *checkout.Receipt) {
	return s.coordinator.State(), s.coordinator.Receipt()
}

// close tears the session down: the cart is discarded and any in-flight
// checkout outcome is ignored. The session must already be unregistered from
// its Manager. Safe to call more than once.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.cart.Clear()
	s.mu.Unlock()
	s.coordinator.Abandon()
}

// Manager tracks active sessions by id with a sliding expiry.
type Manager struct {
	ttl       time.Duration
	submitter checkout.Submitter
	catalog   checkout.CatalogRefresher
	lg        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Sessions expire after ttl of inactivity.
func NewManager(ttl time.Duration, submitter checkout.Submitter, catalog checkout.CatalogRefresher, lg *zap.Logger) *Manager {
	return &Manager{
		ttl:       ttl,
		submitter: submitter,
		catalog:   catalog,
		lg:        lg,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session for the given operator. The operator identity must
// already be resolved; an empty id fails with checkout.ErrSessionInvalid.
func (m *Manager) Open(op checkout.Operator) (*Session, error) {
	if op.ID == "" {
		return nil, checkout.ErrSessionInvalid
	}

	now := time.Now()
	c := cart.New()
	s := &Session{
		ID:          uuid.New().String(),
		Operator:    op,
		CreatedAt:   now,
		cart:        c,
		coordinator: checkout.NewCoordinator(c, m.submitter, m.catalog, m.lg),
		expiresAt:   now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.lg.Info("session opened",
		zap.String("session_id", s.ID),
		zap.String("operator", op.ID))
	return s, nil
}

// Get returns the session with the given id and extends its expiry. An
// expired session is torn down and reported as checkout.ErrSessionInvalid so
// the caller can distinguish "re-authenticate" from "unknown session".
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	// The session lock is taken without holding m.mu: a checkout in flight
	// on one session must not stall lookups of every other session.
	now := time.Now()
	s.mu.Lock()
	expired := now.After(s.expiresAt)
	if !expired {
		s.expiresAt = now.Add(m.ttl)
	}
	s.mu.Unlock()

	if expired {
		m.unregister(id)
		s.close()
		return nil, checkout.ErrSessionInvalid
	}
	return s, nil
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Close ends a session explicitly.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.close()
	m.lg.Info("session closed", zap.String("session_id", id))
	return nil
}

// Sweep evicts expired sessions every interval until ctx is cancelled.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.evictExpired(now)
			}
		}
	}()
}

func (m *Manager) evictExpired(now time.Time) {
	m.mu.Lock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.Unlock()

	for _, s := range candidates {
		s.mu.Lock()
		gone := now.After(s.expiresAt)
		s.mu.Unlock()
		if !gone {
			continue
		}
		m.unregister(s.ID)
		s.close()
		m.lg.Info("session expired", zap.String("session_id", s.ID))
	}
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
