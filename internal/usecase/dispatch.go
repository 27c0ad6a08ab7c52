package usecase

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"askdesk/internal/domain"
	"askdesk/internal/infra/tracer"
)

// DispatchedRun is a started handler invocation plus its display metadata.
// The caller (normally the relay) owns consuming the run.
type DispatchedRun struct {
	Intent      domain.Intent
	HandlerID   string
	DisplayName string
	Run         domain.Run
}

// DispatchResult is the synchronous form: the handler's complete answer.
type DispatchResult struct {
	Intent      domain.Intent
	DisplayName string
	FinalText   string
}

// Dispatcher routes one inbound question to its responder: classify, resolve
// the handler mapping, look up the live handler, invoke. It holds no mutable
// state and is safe to share across concurrent relays.
type Dispatcher struct {
	registry  *Registry
	directory domain.HandlerDirectory
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. The directory must already have been
// validated against the registry (Registry.Validate at startup).
func NewDispatcher(registry *Registry, directory domain.HandlerDirectory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, directory: directory, logger: logger}
}

// DispatchStream classifies rawText, starts the selected handler, and
// returns the running invocation. enrichment, when non-empty, is prepended
// to the query so the handler can resolve references like "the first two";
// building it is the caller's job, not the Dispatcher's.
//
// Handler start failures are wrapped as ErrHandlerExecution; a missing live
// handler is ErrHandlerNotFound: misconfiguration, surfaced and not retried.
func (d *Dispatcher) DispatchStream(ctx context.Context, rawText, enrichment string, opts domain.InvokeOptions) (DispatchedRun, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatcher.dispatch")
	defer span.End()

	classification := Classify(rawText)
	span.SetAttributes(tracer.StringAttr("intent", string(classification.Intent)))

	mapping, err := d.registry.Resolve(classification.Intent)
	if err != nil {
		tracer.RecordError(span, err)
		return DispatchedRun{}, err
	}

	invoker, ok := d.directory.Lookup(mapping.HandlerID)
	if !ok {
		err := domain.NewDomainError("Dispatcher.DispatchStream",
			domain.ErrHandlerNotFound, mapping.HandlerID)
		tracer.RecordError(span, err)
		return DispatchedRun{}, err
	}

	query := classification.NormalizedQuery
	if enrichment != "" {
		query = enrichment + "\n\n" + query
	}

	d.logger.Info("dispatching question",
		"intent", classification.Intent,
		"handler", mapping.HandlerID,
		"relay_id", opts.RelayID)

	run, err := invoker.Invoke(ctx, mapping.HandlerID, query, opts)
	if err != nil {
		tracer.RecordError(span, err)
		return DispatchedRun{}, domain.NewDomainError("Dispatcher.DispatchStream",
			domain.ErrHandlerExecution, err.Error())
	}

	tracer.SetOK(span)
	return DispatchedRun{
		Intent:      classification.Intent,
		HandlerID:   mapping.HandlerID,
		DisplayName: mapping.DisplayName,
		Run:         run,
	}, nil
}

// Dispatch is the synchronous form: it starts the handler and drains the
// event stream into the final answer text. Used by callers that want a
// single awaited result instead of driving a relay.
func (d *Dispatcher) Dispatch(ctx context.Context, rawText, enrichment string, opts domain.InvokeOptions) (DispatchResult, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatcher.dispatch_sync",
		trace.WithAttributes(tracer.StringAttr("mode", "sync")))
	defer span.End()

	dr, err := d.DispatchStream(ctx, rawText, enrichment, opts)
	if err != nil {
		tracer.RecordError(span, err)
		return DispatchResult{}, err
	}

	var sb strings.Builder
	for ev := range dr.Run.Events() {
		if ev.Kind == domain.EventTextDelta {
			sb.WriteString(ev.Text)
		}
	}
	if err := dr.Run.Err(); err != nil {
		tracer.RecordError(span, err)
		return DispatchResult{}, domain.NewDomainError("Dispatcher.Dispatch",
			domain.ErrHandlerExecution, err.Error())
	}

	tracer.SetOK(span)
	return DispatchResult{
		Intent:      dr.Intent,
		DisplayName: dr.DisplayName,
		FinalText:   sb.String(),
	}, nil
}
