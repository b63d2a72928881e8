package throughput

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a link failure
type ErrorKind string

const (
	NotConnected       ErrorKind = "not_connected"
	ConnectionRejected ErrorKind = "connection_rejected"
	ExchangeFailure    ErrorKind = "exchange_failure"
	SendFailure        ErrorKind = "send_failure"
)

// LinkError represents any failure reported by the link or the data path
type LinkError struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface
func (e *LinkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare LinkError values by Kind
func (e *LinkError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors
var (
	ErrNotConnected       = &LinkError{Kind: NotConnected}
	ErrConnectionRejected = &LinkError{Kind: ConnectionRejected}
	ErrExchangeFailure    = &LinkError{Kind: ExchangeFailure}
	ErrSendFailure        = &LinkError{Kind: SendFailure}
)

// SendError reports the fragment that the lower layer refused.
// Fragments after it were not sent.
type SendError struct {
	Fragment int // zero-based fragment index
	Offset   int // byte offset of the fragment in the buffer
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failure at fragment %d (offset %d): %v", e.Fragment, e.Offset, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Is makes every SendError match ErrSendFailure
func (e *SendError) Is(target error) bool {
	t, ok := target.(*LinkError)
	return ok && t.Kind == SendFailure
}

// IsKind reports whether any error in err's chain is of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, &LinkError{Kind: kind})
}

// NormalizeError maps known link-layer error strings to the LinkError taxonomy.
// The original error is kept in the message.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var lerr *LinkError
	if errors.As(err, &lerr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not connected"), strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrConnectionRejected, err)
	default:
		return err
	}
}
