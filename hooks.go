package soagw

import (
	"context"
)

// State is a stage of the dispatch of one call.
type State int

const (
	StateReceived State = iota
	StateResolved
	StateValidated
	StateDecoded
	StateInvoked
	StateEncoded
	StateSent
	StateFaulted
)

var stateNames = [...]string{
	StateReceived:  "received",
	StateResolved:  "resolved",
	StateValidated: "validated",
	StateDecoded:   "decoded",
	StateInvoked:   "invoked",
	StateEncoded:   "encoded",
	StateSent:      "sent",
	StateFaulted:   "faulted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// DispatchHook observes the dispatch of every call.
// Implementations must be safe for concurrent use.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, fault *Fault)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back
// to OnDispatchEnd.
type HookToken any

// DispatchInfo describes one call.
type DispatchInfo struct {
	// Operation is the action supplied with the call.
	Operation string

	// State is StateReceived at start and the terminal state at end.
	State State

	// FaultedAt is the last state reached before a fault.
	FaultedAt State

	// RequestBytes and ResponseBytes are the envelope sizes. ResponseBytes
	// is zero at start.
	RequestBytes  int
	ResponseBytes int

	// TransportMetadata carries transport details such as remote_addr and
	// user_agent, plus the trace propagation headers of HTTP calls.
	TransportMetadata map[string]string
}
