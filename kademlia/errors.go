package kademlia

import "fmt"

// ErrSendFailure wraps a send-capability error raised while emitting the
// Ping of an eviction contest. Per spec §7, the table and pending-probes
// map are left unchanged when this is returned.
type ErrSendFailure struct {
	Endpoint Endpoint
	Err      error
}

func (e *ErrSendFailure) Error() string {
	return fmt.Sprintf("kademlia: ping to %v failed: %v", e.Endpoint, e.Err)
}

func (e *ErrSendFailure) Unwrap() error { return e.Err }
