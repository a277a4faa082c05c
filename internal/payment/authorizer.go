package payment

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrDeclined is returned when the issuer refuses the charge.
	ErrDeclined = errors.New("payment declined by bank")
	// ErrFailed is returned for any other authorization failure.
	ErrFailed = errors.New("payment failed")
)

// Charge is what the gate asks an Authorizer to approve.
type Charge struct {
	Amount   int
	Currency string
	Form     Form
}

// Authorizer approves or rejects a charge.
type Authorizer interface {
	Authorize(ctx context.Context, c Charge) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, c Charge) error

func (f AuthorizerFunc) Authorize(ctx context.Context, c Charge) error { return f(ctx, c) }

// SimulatedAuthorizer stands in for a processor: it waits Delay and declines
// card numbers ending in 0.
type SimulatedAuthorizer struct {
	Delay time.Duration
}

func (s SimulatedAuthorizer) Authorize(ctx context.Context, c Charge) error {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if strings.HasSuffix(onlyDigits(c.Form.CardNumber), "0") {
		return ErrDeclined
	}
	return nil
}
