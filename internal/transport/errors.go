package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnavailable     Kind = "unavailable"
	KindUnreachable     Kind = "unreachable"
	KindTimeout         Kind = "timeout"
	KindCanceled        Kind = "canceled"
	KindStatus          Kind = "status"
	KindNotFound        Kind = "not_found"
	KindContentType     Kind = "content_type"
	KindEmptyContent    Kind = "empty_content"
	KindInvalidResponse Kind = "invalid_response"
)

// Error is returned by every Client operation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil || t.Status != 0 {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
	ErrUnreachable     = &Error{Kind: KindUnreachable}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrCanceled        = &Error{Kind: KindCanceled}
	ErrStatus          = &Error{Kind: KindStatus}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrContentType     = &Error{Kind: KindContentType}
	ErrEmptyContent    = &Error{Kind: KindEmptyContent}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
)

// KindOf returns the Kind of a transport error, or "" for other errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// UserMessage maps an error to the message shown to the user.
func UserMessage(err error) string {
	var te *Error
	if !errors.As(err, &te) {
		return "Upload failed. Please try again."
	}
	switch te.Kind {
	case KindValidation:
		if te.Err != nil {
			return te.Err.Error()
		}
		return "Invalid request."
	case KindUnavailable:
		return "Server is currently unavailable. Please try again later."
	case KindUnreachable:
		return "Cannot connect to server. Please check your internet connection."
	case KindTimeout:
		return "The server took too long to respond. Please try again."
	case KindCanceled:
		return "The request was cancelled."
	case KindNotFound:
		return "The requested document was not found. Please upload your file again."
	case KindContentType:
		return "Server did not return a valid document."
	case KindEmptyContent:
		return "The server returned an empty document."
	case KindInvalidResponse:
		return "Unexpected response from server."
	case KindStatus:
		switch {
		case te.Status == http.StatusUnprocessableEntity:
			return "The server could not process this document. Please check the file and try again."
		case te.Status >= 500:
			return fmt.Sprintf("Server error: %d. Please try again later.", te.Status)
		default:
			return fmt.Sprintf("Server error: %d - %s", te.Status, http.StatusText(te.Status))
		}
	}
	return "Upload failed. Please try again."
}

// HTTPStatus is the status our own API answers with for a transport error.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return 499
	case KindUnreachable, KindStatus, KindContentType, KindEmptyContent, KindInvalidResponse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func validationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func classify(op string, callCtx context.Context, err error) error {
	kind := KindUnreachable
	var netErr net.Error
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func statusError(op string, resp *response) error {
	kind := KindStatus
	if resp.status == http.StatusNotFound {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Status: resp.status, Err: fmt.Errorf("upstream: %s", resp.detail())}
}
