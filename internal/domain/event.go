package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the kind of event emitted by a handler run.
type EventKind string

const (
	EventTextDelta     EventKind = "text-delta"
	EventToolCall      EventKind = "tool-call"
	EventToolOutput    EventKind = "tool-output"
	EventWorkflowStart EventKind = "workflow-execution-start"

	// EventWorkflowStep is synthesized by DecodeToolOutput when a tool-output
	// payload carries a workflow-step-start discriminator. It never arrives
	// on the wire directly.
	EventWorkflowStep EventKind = "workflow-step-start"
)

// AgentMarker is the substring the status renderer uses to recognize
// agent-lifecycle event kinds it has no dedicated branch for.
const AgentMarker = "agent"

// AgentEvent is one element of a handler run's event stream. Kind is the
// discriminator; only the fields belonging to that kind are populated.
// Unrecognized kinds are legal and flow through with just Kind set.
type AgentEvent struct {
	Kind         EventKind       `json:"kind"`
	Text         string          `json:"text,omitempty"`          // text-delta
	ToolName     string          `json:"tool_name,omitempty"`     // tool-call
	WorkflowName string          `json:"workflow_name,omitempty"` // workflow-execution-start
	StepName     string          `json:"step_name,omitempty"`     // workflow-step-start
	AgentName    string          `json:"agent_name,omitempty"`    // agent.* lifecycle kinds
	Payload      json.RawMessage `json:"payload,omitempty"`       // tool-output envelope
}

// toolOutputEnvelope is the wire shape nested inside a tool-output payload.
// The runtime wraps workflow progress in generic tool output, so the inner
// type field is the only way to tell a step boundary from ordinary output.
type toolOutputEnvelope struct {
	Type     string `json:"type"`
	StepName string `json:"step_name"`
	Workflow string `json:"workflow"`
}

// DecodeToolOutput inspects a tool-output event's nested payload. When the
// payload's type discriminator indicates a workflow step start, it returns a
// synthesized EventWorkflowStep event and ok=true. Any other payload,
// including malformed JSON, returns ok=false: plain tool output needs no
// unwrapping and must not fail the stream.
func DecodeToolOutput(ev AgentEvent) (AgentEvent, bool) {
	if ev.Kind != EventToolOutput || len(ev.Payload) == 0 {
		return AgentEvent{}, false
	}
	var env toolOutputEnvelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		return AgentEvent{}, false
	}
	if env.Type != string(EventWorkflowStep) || env.StepName == "" {
		return AgentEvent{}, false
	}
	return AgentEvent{
		Kind:         EventWorkflowStep,
		StepName:     env.StepName,
		WorkflowName: env.Workflow,
	}, true
}

// Run is a single in-flight handler invocation. Events yields the stream in
// arrival order and is closed when the handler finishes; Err reports the
// stream outcome and is valid only after Events is drained.
type Run interface {
	Events() <-chan AgentEvent
	Err() error
}

// String implements fmt.Stringer for log output.
func (k EventKind) String() string { return string(k) }

var _ fmt.Stringer = EventKind("")
