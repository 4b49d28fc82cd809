package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryAfterer is implemented by provider errors that carry the delay the
// provider asked for before the next attempt.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// Class groups delivery failures by how a caller should react.
type Class int

const (
	// ClassNone is the class of a nil error.
	ClassNone Class = iota
	// ClassPermanent failures will fail again: bad credentials, bad number.
	ClassPermanent
	// ClassTransient failures may succeed on a later attempt.
	ClassTransient
	// ClassThrottled failures are transient and ask the caller to slow down.
	ClassThrottled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Classify sorts err by provider status first, then by network failure
// kind. Anything unrecognized is permanent.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	return ClassPermanent
}

func classifyStatus(code int) Class {
	switch code {
	case http.StatusTooManyRequests:
		return ClassThrottled
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	c := Classify(err)
	return c == ClassTransient || c == ClassThrottled
}

// requestedDelay returns the provider's Retry-After hint, or zero.
func requestedDelay(err error) time.Duration {
	var ra RetryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0
}
