// Package agents is the HTTP client for the hosted handler runtime. A run
// is started with one POST and streamed back as server-sent events that
// decode into domain.AgentEvent values.
package agents

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"askdesk/internal/domain"
	"askdesk/internal/infra/config"
)

const doneSentinel = "[DONE]"

// Client implements domain.HandlerInvoker against the agents runtime.
// Calls are rate-limited and routed through a circuit breaker so a dead
// runtime fails fast instead of piling up blocked relays.
type Client struct {
	baseURL string
	apiKey  string
	httpCli *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// NewClient creates a Client from config.
func NewClient(cfg config.AgentsConfig, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "agents",
		MaxRequests: 1, // allow 1 probe in half-open state
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpCli: &http.Client{Timeout: cfg.InvokeTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: cb,
		logger:  logger,
	}
}

type runRequest struct {
	Query    string `json:"query"`
	Channel  string `json:"channel,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	RelayID  string `json:"relay_id,omitempty"`
	Stream   bool   `json:"stream"`
}

// Invoke starts a handler run and returns its event stream. The breaker
// only guards run creation; once the stream is open, mid-stream failures
// belong to the run itself.
func (c *Client) Invoke(ctx context.Context, handlerID, query string, opts domain.InvokeOptions) (domain.Run, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapOp("agents rate limit", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.startRun(ctx, handlerID, query, opts)
	})
	if err != nil {
		return nil, domain.WrapOp("agents invoke", err)
	}

	r := &run{
		events: make(chan domain.AgentEvent),
		body:   resp.Body,
		logger: c.logger.With("handler", handlerID, "relay_id", opts.RelayID),
	}
	go r.consume()
	return r, nil
}

func (c *Client) startRun(ctx context.Context, handlerID, query string, opts domain.InvokeOptions) (*http.Response, error) {
	payload, err := json.Marshal(runRequest{
		Query:    query,
		Channel:  opts.Channel,
		ThreadID: opts.ThreadID,
		RelayID:  opts.RelayID,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/handlers/%s/runs", c.baseURL, handlerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("start run: %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	return resp, nil
}

// run implements domain.Run over one SSE response body.
type run struct {
	events chan domain.AgentEvent
	body   io.ReadCloser
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

func (r *run) Events() <-chan domain.AgentEvent { return r.events }

// Err is valid once Events is closed.
func (r *run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// consume reads SSE frames until the done sentinel, an error frame, or EOF.
// Each data line decodes into one AgentEvent; unknown kinds are forwarded
// untouched for the renderer's generic branch.
func (r *run) consume() {
	defer close(r.events)
	defer r.body.Close()

	scanner := bufio.NewScanner(r.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneSentinel {
			return
		}

		var ev streamFrame
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			r.logger.Warn("undecodable stream frame skipped", "error", err)
			continue
		}
		if ev.Error != "" {
			r.setErr(fmt.Errorf("%w: %s", domain.ErrHandlerExecution, ev.Error))
			return
		}
		r.events <- ev.AgentEvent
	}

	if err := scanner.Err(); err != nil {
		r.setErr(fmt.Errorf("%w: read stream: %s", domain.ErrHandlerExecution, err))
	}
}

// streamFrame is one decoded data line: either an event or a terminal error.
type streamFrame struct {
	domain.AgentEvent
	Error string `json:"error,omitempty"`
}

func (r *run) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Directory is the explicit handler directory built once at startup: every
// configured handler ID maps to this client. Read-only after construction.
type Directory struct {
	client     *Client
	handlerIDs []string
	members    map[string]struct{}
}

// NewDirectory registers handlerIDs against client.
func NewDirectory(client *Client, handlerIDs []string) *Directory {
	members := make(map[string]struct{}, len(handlerIDs))
	for _, id := range handlerIDs {
		members[id] = struct{}{}
	}
	return &Directory{client: client, handlerIDs: handlerIDs, members: members}
}

// Lookup implements domain.HandlerDirectory.
func (d *Directory) Lookup(handlerID string) (domain.HandlerInvoker, bool) {
	if _, ok := d.members[handlerID]; !ok {
		return nil, false
	}
	return d.client, true
}

// IDs implements domain.HandlerDirectory.
func (d *Directory) IDs() []string { return d.handlerIDs }

var _ domain.HandlerInvoker = (*Client)(nil)
var _ domain.HandlerDirectory = (*Directory)(nil)
