package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cvalue-web/internal/shared/metrics"
	"cvalue-web/internal/shared/telemetry"
)

// State is a step of the payment flow.
type State string

const (
	StateIdle       State = "idle"
	StateFormOpen   State = "form_open"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
)

// User-facing outcome messages.
const (
	MessageDeclined = "Payment declined by bank"
	MessageFailed   = "Payment failed. Please try again"
)

var (
	// ErrBusy is returned when the gate is processing a payment.
	ErrBusy = errors.New("payment is being processed")
	// ErrFormClosed is returned when submitting without an open form.
	ErrFormClosed = errors.New("payment form is not open")
)

// Status is a snapshot of the gate.
type Status struct {
	State    State  `json:"state"`
	Error    string `json:"error,omitempty"`
	Form     Form   `json:"form"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

// Gate is the payment state machine for one preview.
type Gate struct {
	auth     Authorizer
	amount   int
	currency string
	now      func() time.Time

	mu      sync.Mutex
	state   State
	form    Form
	message string
}

// NewGate constructs a Gate charging amount in currency through auth.
func NewGate(auth Authorizer, amount int, currency string) *Gate {
	return &Gate{
		auth:     auth,
		amount:   amount,
		currency: currency,
		now:      time.Now,
		state:    StateIdle,
	}
}

// WithClock overrides the clock used for expiry checks.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Open shows the form. Reopening keeps what the user typed.
func (g *Gate) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateProcessing {
		return ErrBusy
	}
	g.state = StateFormOpen
	return nil
}

// Close hides the form and discards its contents.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateProcessing {
		return ErrBusy
	}
	g.state = StateIdle
	g.form = Form{}
	g.message = ""
	return nil
}

// Status returns the current state with a masked form.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:    g.state,
		Error:    g.message,
		Form:     g.form.Masked(),
		Amount:   g.amount,
		Currency: g.currency,
	}
}

// Submit validates the form and authorizes the charge. On success the
// continuation runs, the form is cleared and the gate ends in StateSuccess.
// On decline or failure the gate returns to StateFormOpen with the form kept.
func (g *Gate) Submit(ctx context.Context, form Form, onSuccess func(context.Context) error) error {
	g.mu.Lock()
	if g.state == StateProcessing {
		g.mu.Unlock()
		return ErrBusy
	}
	if g.state != StateFormOpen {
		g.mu.Unlock()
		return ErrFormClosed
	}
	form = Normalize(form)
	g.form = form
	if errs := Validate(form, g.now()); len(errs) > 0 {
		g.message = errs[0].Message
		g.mu.Unlock()
		return errs
	}
	g.state = StateProcessing
	g.message = ""
	g.mu.Unlock()

	err := g.auth.Authorize(ctx, Charge{Amount: g.amount, Currency: g.currency, Form: form})

	g.mu.Lock()
	if err != nil {
		g.state = StateFormOpen
		declined := errors.Is(err, ErrDeclined)
		if declined {
			g.message = MessageDeclined
		} else {
			g.message = MessageFailed
		}
		g.mu.Unlock()

		if declined {
			metrics.IncPayment(metrics.PaymentDeclined)
		} else {
			metrics.IncPayment(metrics.PaymentFailed)
		}
		telemetry.Warn("payment.rejected", map[string]any{
			"amount":   g.amount,
			"currency": g.currency,
			"err":      err,
		})
		if declined {
			return err
		}
		return fmt.Errorf("%w: %w", ErrFailed, err)
	}
	g.state = StateSuccess
	g.form = Form{}
	g.mu.Unlock()

	metrics.IncPayment(metrics.PaymentSucceeded)
	telemetry.Info("payment.succeeded", map[string]any{
		"amount":   g.amount,
		"currency": g.currency,
	})
	if onSuccess != nil {
		if err := onSuccess(ctx); err != nil {
			return fmt.Errorf("after payment: %w", err)
		}
	}
	return nil
}

// Message returns the user-facing error for a Submit error.
func Message(err error) string {
	var fe FieldErrors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe) && len(fe) > 0:
		return fe[0].Message
	case errors.Is(err, ErrDeclined):
		return MessageDeclined
	default:
		return MessageFailed
	}
}
