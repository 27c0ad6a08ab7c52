package domain

import "context"

// MessageRef is the opaque handle of one posted chat message. Set once after
// the initial post and never reassigned for the lifetime of a relay.
type MessageRef struct {
	Channel   string
	Timestamp string
}

// Thread identifies where an inbound question arrived and where the answer
// message should be posted.
type Thread struct {
	Channel  string
	ThreadTS string // empty = top-level message
}

// ChatSink is the outbound side of the chat platform: post one message,
// then edit it in place. Both calls may fail with a transport error; the
// relay decides which failures are swallowed and which are retried.
type ChatSink interface {
	Post(ctx context.Context, thread Thread, text string) (MessageRef, error)
	Update(ctx context.Context, ref MessageRef, text string) error
}

// InboundMessage is one verified question delivered by the webhook.
type InboundMessage struct {
	Text     string
	SenderID string
	Thread   Thread
	EventID  string // platform delivery ID, used for dedup
}
