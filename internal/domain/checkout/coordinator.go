// Package checkout converts a non-empty cart into a durable sale recorded by
// the inventory backend.
//
// The coordinator is a small state machine: Idle → Submitting → Succeeded or
// Failed, returning to Idle once the outcome is acknowledged. A sale is
// submitted as one atomic multi-line call; on failure the cart is preserved
// byte for byte so the operator can retry, and nothing retries automatically.
package checkout

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/salepoint/pos-terminal/internal/domain/cart"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with zero lines.
	// No network call is issued.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrSessionInvalid is returned when no operator identity is resolvable
	// at checkout time.
	ErrSessionInvalid = errors.New("operator session is invalid")
	// ErrCheckoutInProgress is returned when a checkout is attempted while a
	// previous one has not finished or been acknowledged.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrInvalidPayment is returned for an unsupported payment method.
	ErrInvalidPayment = errors.New("unsupported payment method")
)

// SubmissionError wraps the transport error or backend rejection that caused
// a checkout to fail. It is distinguishable from cart-local stock errors:
// resolving it requires retrying the checkout or fixing the session, not
// adjusting quantities.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "sale submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// State is the coordinator's position in the checkout protocol.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Coordinator owns the checkout protocol for one session's cart.
//
// Cart lines are captured as values when Checkout is called and never re-read
// mid-flight. The owning session guarantees no cart mutation is interleaved
// with a submission; the coordinator's own mutex only guards its state.
type Coordinator struct {
	cart      *cart.Cart
	submitter Submitter
	catalog   CatalogRefresher
	lg        *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped on Abandon; stale submissions are discarded
	receipt *Receipt
	lastErr error
}

// NewCoordinator creates an idle coordinator for the given cart.
func NewCoordinator(c *cart.Cart, submitter Submitter, catalog CatalogRefresher, lg *zap.Logger) *Coordinator {
	return &Coordinator{
		cart:      c,
		submitter: submitter,
		catalog:   catalog,
		lg:        lg,
		state:     StateIdle,
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Receipt returns the receipt of the last successful checkout, or nil when
// the coordinator is not in the Succeeded state.
func (c *Coordinator) Receipt() *Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

// Err returns the terminal error of the last failed checkout, or nil.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Checkout submits the whole cart as one sale.
//
// Preconditions are checked without touching the network: the operator must
// be resolved, the coordinator idle, and the cart non-empty. On success the
// cart is cleared and the catalog snapshot refreshed; on failure the cart is
// left untouched and a *SubmissionError is returned. Retrying is always an
// explicit operator action.
func (c *Coordinator) Checkout(ctx context.Context, op Operator, method PaymentMethod) (*Receipt, error) {
	if op.ID == "" {
		return nil, ErrSessionInvalid
	}

	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if c.cart.Empty() {
		c.mu.Unlock()
		return nil, ErrEmptyCart
	}

	req := SaleRequest{
		Operator:      op,
		PaymentMethod: method,
		Lines:         captureLines(c.cart),
	}
	c.state = StateSubmitting
	c.receipt = nil
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	conf, err := c.submitter.SubmitSale(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Abandoned while in flight. The backend may or may not have
		// recorded the sale; the torn-down session no longer cares.
		c.lg.Info("discarding checkout outcome for abandoned session",
			zap.String("operator", op.ID))
		return nil, ErrSessionInvalid
	}

	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			// The backend no longer accepts the terminal's credentials.
			// Surfaced as-is so the caller tears the session down instead
			// of retrying.
			c.state = StateFailed
			c.lastErr = err
			c.lg.Warn("checkout rejected, session invalid",
				zap.String("operator", op.ID))
			return nil, err
		}
		subErr := &SubmissionError{Err: err}
		c.state = StateFailed
		c.lastErr = subErr
		c.lg.Warn("checkout failed, cart preserved",
			zap.String("operator", op.ID),
			zap.Int("lines", len(req.Lines)),
			zap.Error(err))
		return nil, subErr
	}

	receipt := &Receipt{
		Reference:     conf.Reference,
		Lines:         req.Lines,
		Total:         req.Total(),
		PaymentMethod: method,
		Operator:      op,
		Timestamp:     conf.Timestamp,
	}
	c.cart.Clear()
	c.state = StateSucceeded
	c.receipt = receipt

	// Best effort: a failed refresh leaves a stale snapshot, which the cart
	// re-validates lazily on the next mutation anyway.
	if err := c.catalog.Refresh(ctx); err != nil {
		c.lg.Warn("catalog refresh after checkout failed", zap.Error(err))
	}

	c.lg.Info("checkout succeeded",
		zap.String("reference", receipt.Reference),
		zap.String("operator", op.ID),
		zap.Int("lines", len(receipt.Lines)),
		zap.String("total", receipt.Total.String()))
	return receipt, nil
}

// Acknowledge returns the coordinator to Idle after the caller has consumed
// a Succeeded or Failed outcome. Acknowledging an idle coordinator is a
// no-op; acknowledging mid-submission is an error.
func (c *Coordinator) Acknowledge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return ErrCheckoutInProgress
	}
	c.state = StateIdle
	c.receipt = nil
	c.lastErr = nil
	return nil
}

// Abandon tears the coordinator down. An in-flight submission is not
// cancelled on the backend side; its eventual outcome is discarded.
func (c *Coordinator) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.receipt = nil
	c.lastErr = nil
}

// captureLines snapshots the cart contents as sale lines with the effective
// price charged per unit.
func captureLines(c *cart.Cart) []SaleLine {
	lines := c.Lines()
	out := make([]SaleLine, len(lines))
	for i, l := range lines {
		out[i] = SaleLine{
			ItemID:    l.Item.ID,
			Name:      l.Item.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.EffectivePrice(),
		}
	}
	return out
}
