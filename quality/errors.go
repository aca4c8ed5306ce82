package quality

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failed quality request.
type Kind int

const (
	// KindPayload means the region could not be written to disk.
	KindPayload Kind = iota + 1
	// KindConnect means the service could not be reached or dropped the request.
	KindConnect
	// KindTimeout means the dial or the reply exceeded its deadline, or the
	// context was cancelled.
	KindTimeout
	// KindProtocol means the reply was missing, malformed, or lacked the score.
	KindProtocol
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is returned by Client.Score for every failed request.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("quality %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a quality error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

func newError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}
