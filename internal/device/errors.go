package device

import (
	"errors"
	"fmt"
)

// ErrorKind classifies device failures for callers that branch on cause.
type ErrorKind string

const (
	// KindAuth covers SSH authentication and enable elevation failures.
	KindAuth ErrorKind = "auth"
	// KindTimeout covers connect and command deadlines expiring.
	KindTimeout ErrorKind = "timeout"
	// KindTransport covers everything else: refused connections, dropped
	// channels, protocol errors.
	KindTransport ErrorKind = "transport"
)

// OpError is the error type returned by all device operations.
type OpError struct {
	Op     string
	Target string
	Kind   ErrorKind
	Err    error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s %s: %s: %v", e.Op, e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("device %s %s: %s", e.Op, e.Target, e.Kind)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is a device authentication failure.
func IsAuth(err error) bool {
	return hasKind(err, KindAuth)
}

// IsTimeout reports whether err is a device timeout.
func IsTimeout(err error) bool {
	return hasKind(err, KindTimeout)
}

// IsTransport reports whether err is a device transport failure.
func IsTransport(err error) bool {
	return hasKind(err, KindTransport)
}

func hasKind(err error, kind ErrorKind) bool {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind == kind
	}
	return false
}
