package smtp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRecipients is returned by Send when the recipient list holds no
	// address at all. No command has been sent at that point.
	ErrNoRecipients = errors.New("no recipients")

	ErrMalformedResponse = errors.New("malformed server response")
)

// Kind tags an error with its place in the client's error taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindSocketRead
	KindProtocol
	KindAddress
	KindNoRecipients
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindSocketRead:
		return "socket read"
	case KindProtocol:
		return "protocol"
	case KindAddress:
		return "address"
	case KindNoRecipients:
		return "no recipients"
	default:
		return "unknown"
	}
}

// ConnectionError means the TCP connection to the relay could not be opened.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to SMTP server %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SocketReadError means no complete reply line could be read, either because
// the peer closed the stream or because the line was not a valid reply.
type SocketReadError struct {
	Err error
}

func (e *SocketReadError) Error() string {
	return fmt.Sprintf("can not read from socket: %v", e.Err)
}

func (e *SocketReadError) Unwrap() error {
	return e.Err
}

// ProtocolError is a reply whose code differs from the one required by the
// command that was just issued.
type ProtocolError struct {
	Command  string
	Expected int
	Actual   int
	Reply    string
}

func (e *ProtocolError) Error() string {
	cmd := e.Command
	if cmd == "" {
		cmd = "(greeting)"
	}
	return fmt.Sprintf("last command %q: expected status %d, got %d: %s", cmd, e.Expected, e.Actual, e.Reply)
}

// AddressError carries a recipient that failed syntax validation.
type AddressError struct {
	Raw string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid recipient address %q", e.Raw)
}

// KindOf reports the taxonomy tag of err, looking through wrapped errors.
func KindOf(err error) Kind {
	var (
		connErr  *ConnectionError
		readErr  *SocketReadError
		protoErr *ProtocolError
		addrErr  *AddressError
	)

	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoRecipients):
		return KindNoRecipients
	case errors.As(err, &addrErr):
		return KindAddress
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &readErr):
		return KindSocketRead
	case errors.As(err, &connErr):
		return KindConnection
	default:
		return KindUnknown
	}
}
