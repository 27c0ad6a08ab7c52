package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"askdesk/internal/domain"
	"askdesk/internal/infra/retry"
	"askdesk/internal/infra/tracer"
)

// Relay defaults.
const (
	defaultTickInterval  = 300 * time.Millisecond
	defaultEventPause    = 400 * time.Millisecond
	defaultFinalAttempts = 3
	defaultFinalBackoff  = 500 * time.Millisecond

	// fallbackAnswer is the terminal text when the handler produced nothing.
	fallbackAnswer = "_No answer produced._"
)

// RelayConfig tunes the relay's timing and terminal-write policy.
// The zero value selects the defaults above.
type RelayConfig struct {
	TickInterval  time.Duration
	EventPause    time.Duration
	FinalAttempts int
	FinalBackoff  time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.EventPause <= 0 {
		c.EventPause = defaultEventPause
	}
	if c.FinalAttempts <= 0 {
		c.FinalAttempts = defaultFinalAttempts
	}
	if c.FinalBackoff <= 0 {
		c.FinalBackoff = defaultFinalBackoff
	}
	return c
}

// Relay mirrors one handler run into a single chat message: it posts a
// placeholder, animates a status line on a ticker, folds stream events into
// its state, and writes exactly one terminal value after stopping the
// ticker. One Relay serves one inbound message; concurrent messages each get
// their own Relay and share nothing mutable.
type Relay struct {
	sink   domain.ChatSink
	cfg    RelayConfig
	logger *slog.Logger

	id string

	// mu guards everything below. The ticker goroutine and the stream loop
	// are real OS threads here, so plain flag checks are not enough.
	mu       sync.Mutex
	state    RelayState
	frame    int
	finished bool
	ref      domain.MessageRef
	hasRef   bool

	done chan struct{}
}

// NewRelay creates a relay bound to one chat sink.
func NewRelay(sink domain.ChatSink, cfg RelayConfig, logger *slog.Logger) *Relay {
	id := newRelayID()
	return &Relay{
		sink:   sink,
		cfg:    cfg.withDefaults(),
		logger: logger.With("relay_id", id),
		id:     id,
		done:   make(chan struct{}),
	}
}

// ID returns the relay's ULID, used for cross-system log correlation.
func (r *Relay) ID() string { return r.id }

// Run drives the relay to completion: Starting → Streaming → Finalizing,
// or → Failed when the stream errors. It returns the terminal text that was
// written. The returned error reports handler failure; chat-sink trouble
// during the terminal write is logged and tolerated because the sink being
// unreachable is outside this subsystem's control.
func (r *Relay) Run(ctx context.Context, thread domain.Thread, dr DispatchedRun) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "relay.run",
		trace.WithAttributes(
			tracer.StringAttr("handler", dr.HandlerID),
			tracer.StringAttr("relay_id", r.id),
		))
	defer span.End()

	r.state.HandlerName = dr.DisplayName

	// Starting: post the placeholder, remember the one handle this relay
	// will ever write to.
	ref, err := r.sink.Post(ctx, thread, RenderStatus(&r.state, 0))
	if err != nil {
		// No handle exists, so the terminal value goes out as a fresh
		// message instead of an update.
		r.logger.Error("initial placeholder post failed", "error", err)
		tracer.RecordError(span, err)
		r.postFreshError(ctx, thread)
		return "", domain.NewDomainError("Relay.Run", domain.ErrTransport, err.Error())
	}
	r.mu.Lock()
	r.ref = ref
	r.hasRef = true
	r.mu.Unlock()

	ticker := time.NewTicker(r.cfg.TickInterval)
	go r.animate(ctx, ticker)

	// Streaming: fold events in arrival order.
	for ev := range dr.Run.Events() {
		r.consumeEvent(ctx, ev)
	}
	streamErr := dr.Run.Err()

	// The ticker must be stopped before the terminal write begins. A tick
	// already past the finished check may still interleave one stray update,
	// which is fine: the terminal write lands after it and wins.
	r.finish(ticker)

	final := r.terminalText(streamErr)
	writeErr := r.writeTerminal(ctx, final)

	switch {
	case streamErr != nil:
		r.logger.Warn("handler stream failed", "error", streamErr)
		tracer.RecordError(span, streamErr)
		return final, domain.NewDomainError("Relay.Run", domain.ErrHandlerExecution, streamErr.Error())
	case writeErr != nil:
		// Retries exhausted. Tolerated: the user keeps the last status line,
		// the caller must not crash.
		r.logger.Error("terminal write failed after retries", "error", writeErr)
		tracer.RecordError(span, writeErr)
		return final, nil
	default:
		tracer.SetOK(span)
		return final, nil
	}
}

// animate is the ticker goroutine. Each tick re-renders the current state
// under the next frame and best-effort updates the placeholder. A failed
// tick update is swallowed: the animation is UI polish, not correctness.
func (r *Relay) animate(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.finished {
				r.mu.Unlock()
				return
			}
			r.frame++
			text := RenderStatus(&r.state, r.frame)
			ref := r.ref
			r.mu.Unlock()

			if err := r.sink.Update(ctx, ref, text); err != nil {
				r.logger.Debug("tick update dropped", "error", err)
			}
		}
	}
}

// consumeEvent folds one stream event into the relay state. Tool calls and
// workflow step starts additionally force an immediate render plus a brief
// pause, so a tool that starts and finishes within one tick still flashes
// its name instead of flickering past.
func (r *Relay) consumeEvent(ctx context.Context, ev domain.AgentEvent) {
	r.mu.Lock()
	r.state.CurrentEventKind = ev.Kind

	switch ev.Kind {
	case domain.EventTextDelta:
		r.state.AccumulatedText.WriteString(ev.Text)
		r.mu.Unlock()

	case domain.EventToolCall:
		r.state.ActiveToolName = ev.ToolName
		r.mu.Unlock()
		r.renderNow(ctx)
		r.pause(ctx)

	case domain.EventToolOutput:
		if step, ok := domain.DecodeToolOutput(ev); ok {
			r.state.CurrentEventKind = step.Kind
			r.state.ActiveStepName = step.StepName
			if step.WorkflowName != "" {
				r.state.ActiveWorkflowName = step.WorkflowName
			}
			r.mu.Unlock()
			r.renderNow(ctx)
			r.pause(ctx)
			return
		}
		r.mu.Unlock()

	case domain.EventWorkflowStart:
		r.state.ActiveWorkflowName = ev.WorkflowName
		r.mu.Unlock()

	default:
		// Unknown kinds pass straight through to the renderer's generic
		// branch; an agent name, when present, feeds the agent branch.
		if ev.AgentName != "" {
			r.state.ActiveAgentName = ev.AgentName
		}
		r.mu.Unlock()
	}
}

// renderNow pushes one immediate best-effort status update outside the tick
// cadence.
func (r *Relay) renderNow(ctx context.Context) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	text := RenderStatus(&r.state, r.frame)
	ref := r.ref
	r.mu.Unlock()

	if err := r.sink.Update(ctx, ref, text); err != nil {
		r.logger.Debug("event update dropped", "error", err)
	}
}

func (r *Relay) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.cfg.EventPause):
	}
}

// finish flips the finished flag and stops the ticker. After this returns,
// no new tick bodies will run; at most one already-in-flight tick update may
// interleave with the terminal write, which overwrites it.
func (r *Relay) finish(ticker *time.Ticker) {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
	ticker.Stop()
	close(r.done)
}

// terminalText picks the one authoritative final value.
func (r *Relay) terminalText(streamErr error) string {
	if streamErr != nil {
		return "⚠️ Sorry, something went wrong while answering. Please try again."
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if text := r.state.AccumulatedText.String(); text != "" {
		return text
	}
	return fallbackAnswer
}

// writeTerminal performs the bounded-retry terminal write against the
// stored handle.
func (r *Relay) writeTerminal(ctx context.Context, text string) error {
	r.mu.Lock()
	ref := r.ref
	r.mu.Unlock()

	attempt := 0
	return retry.Do(ctx, retry.Config{
		MaxAttempts: r.cfg.FinalAttempts,
		Delay:       r.cfg.FinalBackoff,
	}, func() error {
		attempt++
		err := r.sink.Update(ctx, ref, text)
		if err != nil {
			r.logger.Warn("terminal write attempt failed",
				"attempt", attempt, "error", err)
		}
		return err
	})
}

// postFreshError is the no-handle failure path: the placeholder never
// posted, so a fresh error message is posted instead, with the same retry
// policy as the terminal write.
func (r *Relay) postFreshError(ctx context.Context, thread domain.Thread) {
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: r.cfg.FinalAttempts,
		Delay:       r.cfg.FinalBackoff,
	}, func() error {
		_, err := r.sink.Post(ctx, thread,
			"⚠️ Sorry, I couldn't start answering. Please try again.")
		return err
	})
	if err != nil {
		r.logger.Error("error message post failed after retries", "error", err)
	}
}

// newRelayID generates a ULID for log correlation.
func newRelayID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
