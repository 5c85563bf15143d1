// Package comm provides the point-to-point transport and process topology
// used by the domain-decomposition core.
//
// The core is SPMD: every rank runs the identical control flow and all
// structural planning is deterministic from local knowledge, so the only
// thing a transport must provide is tagged, non-blocking point-to-point
// message passing between ranks plus a barrier. The Comm interface is the
// injection point: production deployments can back it with a network
// transport, while tests use the in-process Group, which simulates any
// process count with one goroutine per rank.
package comm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Communication failures are
// fatal to the exchange that observed them; no call is retried.
var (
	// ErrComm indicates a point-to-point send/receive failure.
	ErrComm = errors.New("comm: communication failure")
	// ErrTopology indicates the process topology could not be built.
	ErrTopology = errors.New("comm: topology construction failed")
)

// Request is the handle of an outstanding non-blocking operation.
type Request interface {
	// Wait blocks until the operation completes and returns its error.
	Wait() error
}

// Comm is one rank's handle on the process group. Methods are called only
// from that rank's goroutine/process; a Comm is not shared between ranks.
type Comm interface {
	// Rank returns this rank's id, 0 <= Rank() < Size().
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Isend starts a non-blocking send of payload to dest. The payload is
	// staged immediately: the caller may reuse the buffer as soon as Isend
	// returns. Messages between a fixed (sender, receiver) pair are
	// delivered in the order they were sent.
	Isend(dest, tag int, payload []byte) Request

	// Irecv starts a non-blocking receive into buf, matching the earliest
	// undelivered message from source with the given tag. The buffer must
	// not be read until the returned request completes. A matched message
	// whose length differs from len(buf) fails the request with ErrComm.
	Irecv(source, tag int, buf []byte) Request

	// Barrier blocks until every rank in the group has entered it.
	Barrier() error
}

// WaitAll waits for every request and returns the first error observed.
// All requests are waited on even after a failure, so no goroutine is left
// blocked on an unconsumed completion.
func WaitAll(reqs ...Request) error {
	var first error
	for _, r := range reqs {
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// doneRequest is an already-completed request.
type doneRequest struct{ err error }

func (r doneRequest) Wait() error { return r.err }

func errRequest(format string, args ...any) Request {
	return doneRequest{err: fmt.Errorf(format, args...)}
}
