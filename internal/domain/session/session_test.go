package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/cart"
	"github.com/salepoint/pos-terminal/internal/domain/catalog"
	"github.com/salepoint/pos-terminal/internal/domain/checkout"
)

type stubSubmitter struct {
	conf *checkout.Confirmation
	err  error
}

func (s *stubSubmitter) SubmitSale(context.Context, checkout.SaleRequest) (*checkout.Confirmation, error) {
	return s.conf, s.err
}

type stubRefresher struct{}

func (stubRefresher) Refresh(context.Context) error { return nil }

var testOperator = checkout.Operator{ID: "op-1", Name: "Sam"}

func newManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	return NewManager(ttl,
		&stubSubmitter{conf: &checkout.Confirmation{Reference: "SLS-00010"}},
		stubRefresher{},
		zap.NewNop())
}

func coffee() catalog.Item {
	return catalog.Item{
		ID:                "coffee",
		Name:              "Coffee",
		UnitPrice:         decimal.RequireFromString("2.00"),
		AvailableQuantity: 8,
	}
}

func TestManagerOpen(t *testing.T) {
	m := newManager(t, time.Minute)

	s, err := m.Open(testOperator)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, testOperator, s.Operator)
	assert.Equal(t, 1, m.Len())

	t.Run("DistinctIDs", func(t *testing.T) {
		s2, err := m.Open(checkout.Operator{ID: "op-2"})
		require.NoError(t, err)
		assert.NotEqual(t, s.ID, s2.ID)
	})

	t.Run("MissingOperator", func(t *testing.T) {
		_, err := m.Open(checkout.Operator{})
		assert.ErrorIs(t, err, checkout.ErrSessionInvalid)
	})
}

func TestManagerGet(t *testing.T) {
	m := newManager(t, time.Minute)
	s, err := m.Open(testOperator)
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerExpiry(t *testing.T) {
	m := newManager(t, 10*time.Millisecond)
	s, err := m.Open(testOperator)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, checkout.ErrSessionInvalid, "expiry reads as invalid session, not unknown")
	assert.Equal(t, 0, m.Len())

	// Torn down for real: the session rejects further work.
	assert.ErrorIs(t, s.Do(func(*cart.Cart) error { return nil }), checkout.ErrSessionInvalid)
}

func TestManagerGetExtendsExpiry(t *testing.T) {
	m := newManager(t, 40*time.Millisecond)
	s, err := m.Open(testOperator)
	require.NoError(t, err)

	// Keep touching the session past its original ttl.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		_, err = m.Get(s.ID)
		require.NoError(t, err)
	}
}

func TestManagerClose(t *testing.T) {
	m := newManager(t, time.Minute)
	s, err := m.Open(testOperator)
	require.NoError(t, err)
	require.NoError(t, s.Do(func(c *cart.Cart) error { return c.Add(coffee()) }))

	require.NoError(t, m.Close(s.ID))
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Close(s.ID), ErrNotFound)

	// Cart state died with the session.
	_, err = s.Checkout(context.Background(), checkout.PaymentCash)
	assert.ErrorIs(t, err, checkout.ErrSessionInvalid)
}

func TestSessionDoSerializesCartAccess(t *testing.T) {
	m := newManager(t, time.Minute)
	s, err := m.Open(testOperator)
	require.NoError(t, err)

	const n = 50
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = s.Do(func(c *cart.Cart) error { return c.Add(coffee()) })
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	var quantity int
	require.NoError(t, s.Do(func(c *cart.Cart) error {
		require.Equal(t, 1, c.Len())
		quantity = c.Lines()[0].Quantity
		return nil
	}))
	// Stock ceiling is 8, so only the first 8 adds landed.
	assert.Equal(t, 8, quantity)
}

func TestSessionCheckout(t *testing.T) {
	m := newManager(t, time.Minute)
	s, err := m.Open(testOperator)
	require.NoError(t, err)
	require.NoError(t, s.Do(func(c *cart.Cart) error { return c.Add(coffee()) }))

	receipt, err := s.Checkout(context.Background(), checkout.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, "SLS-00010", receipt.Reference)

	state, got := s.CheckoutState()
	assert.Equal(t, checkout.StateSucceeded, state)
	assert.Equal(t, receipt, got)

	require.NoError(t, s.Acknowledge())
	state, got = s.CheckoutState()
	assert.Equal(t, checkout.StateIdle, state)
	assert.Nil(t, got)
}

func TestManagerEvictExpired(t *testing.T) {
	m := newManager(t, 10*time.Millisecond)
	_, err := m.Open(testOperator)
	require.NoError(t, err)
	_, err = m.Open(checkout.Operator{ID: "op-2"})
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	m.evictExpired(time.Now().Add(time.Second))
	assert.Equal(t, 0, m.Len())
}

func TestManagerSweep(t *testing.T) {
	m := newManager(t, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.Open(testOperator)
	require.NoError(t, err)

	m.Sweep(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
