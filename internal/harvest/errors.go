package harvest

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that the secondary source has no detail view for an id.
var ErrNotFound = errors.New("item not found")

// TransportError reports a timeout, connection failure or non-success status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response that cannot be read as the expected shape.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// CorruptCheckpointError reports an existing, non-empty checkpoint that does
// not decode. It is fatal: the run must not start over on top of it.
type CorruptCheckpointError struct {
	Subject string
	Path    string
	Err     error
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for subject %q is corrupt: %v", e.Path, e.Subject, e.Err)
}

func (e *CorruptCheckpointError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a remote failure the page loop retries.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	var protocolErr *ProtocolError
	return errors.As(err, &transportErr) || errors.As(err, &protocolErr)
}
