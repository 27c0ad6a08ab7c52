package domain

import "context"

// InvokeOptions carries correlation identifiers for conversational
// continuity. All fields are optional.
type InvokeOptions struct {
	// Channel and ThreadID tie the invocation to one chat thread so the
	// runtime can keep per-thread conversation state.
	Channel  string
	ThreadID string
	// RelayID is the ULID of the relay driving this invocation, for log
	// correlation across process boundaries.
	RelayID string
}

// HandlerInvoker starts a handler run and returns its event stream.
// Implementations talk to the agents runtime; failures starting the run are
// returned immediately, failures mid-stream surface through Run.Err.
type HandlerInvoker interface {
	Invoke(ctx context.Context, handlerID, query string, opts InvokeOptions) (Run, error)
}

// HandlerDirectory resolves a handler ID to a live invoker. Built once at
// startup and read-only afterwards, so it is safe to share across relays.
type HandlerDirectory interface {
	Lookup(handlerID string) (HandlerInvoker, bool)
	// IDs returns every registered handler ID, for startup validation.
	IDs() []string
}
