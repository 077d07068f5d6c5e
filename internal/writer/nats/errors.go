package nats

import "fmt"

// TransportError wraps failures talking to the NATS server.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nats transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
