package fleetapi

import (
	"errors"
	"fmt"
)

// ErrorKind buckets remote failures into the classes the retry policy
// branches on.
type ErrorKind int

const (
	// KindUnclassified marks failures we cannot attribute. Callers treat
	// these as fatal rather than retrying blindly.
	KindUnclassified ErrorKind = iota

	// KindAuth marks credential and session failures.
	KindAuth

	// KindValidation marks requests the server rejected as malformed.
	KindValidation

	// KindTransient marks network hiccups and server-side conditions that
	// a short retry is expected to clear.
	KindTransient

	// KindRateLimit marks explicit throttling by the server.
	KindRateLimit
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate-limit"
	default:
		return "unclassified"
	}
}

// Fault names the server embeds in its error payloads.
const (
	faultAccessDenied   = "AccessDenied"
	faultSessionExpired = "SessionExpired"
	faultValidation     = "ValidationError"
	faultRateLimited    = "RateLimited"
	faultUnavailable    = "ServiceUnavailable"
)

// Error is the failure type every Client method returns for remote and
// transport problems.
type Error struct {
	Kind ErrorKind

	// Op is the client method that failed.
	Op string

	// Name is the fault name reported by the server, empty for transport
	// level failures.
	Name string

	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("fleetapi: %s: %s (%s): %s", e.Op, e.Name, e.Kind, e.Message)
	}
	return fmt.Sprintf("fleetapi: %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure class from err. Errors that did not originate
// in this package come back as KindUnclassified.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnclassified
}

// classifyFault maps a server fault name to its retry class.
func classifyFault(name string) ErrorKind {
	switch name {
	case faultAccessDenied, faultSessionExpired:
		return KindAuth
	case faultValidation:
		return KindValidation
	case faultRateLimited:
		return KindRateLimit
	case faultUnavailable:
		return KindTransient
	default:
		return KindUnclassified
	}
}
