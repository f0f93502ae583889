package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies upstream failures so callers can map them to the
// public error codes without string matching.
type Kind int

const (
	// KindAuthExpired is a 401/403/406 that survived the warm-up retry.
	KindAuthExpired Kind = iota
	// KindHTTP is any other non-2xx response.
	KindHTTP
	// KindUnreachable is a network-level failure (DNS, timeout, refused).
	KindUnreachable
	// KindCircuitOpen is a locally generated fail-fast, no network touched.
	KindCircuitOpen
	// KindMalformedPayload is a 2xx whose body violated the contract.
	KindMalformedPayload
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindHTTP:
		return "upstream_http"
	case KindUnreachable:
		return "unreachable"
	case KindCircuitOpen:
		return "circuit_open"
	case KindMalformedPayload:
		return "malformed_payload"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the upstream layer.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status when applicable, else 0
	Snippet string // truncated response body for diagnostics
	Err     error  // underlying cause when applicable
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status > 0:
		return fmt.Sprintf("upstream %s (status %d): %v", e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.Status, e.Snippet)
	default:
		return fmt.Sprintf("upstream %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err, defaulting to KindUnreachable
// for untyped errors (plain network failures bubble up untyped).
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnreachable
}

// snippet truncates a response body for inclusion in error messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
