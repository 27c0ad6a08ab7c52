package slackchat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack/slackevents"

	"askdesk/internal/domain"
)

const (
	// signatureVersion prefixes both the signing base string and the header.
	signatureVersion = "v0"
	// freshnessWindow rejects replayed deliveries older than this.
	freshnessWindow = 5 * time.Minute
	// maxBodyBytes caps the webhook request body.
	maxBodyBytes = 1 << 20
	// answerTimeout bounds one detached answer pipeline.
	answerTimeout = 5 * time.Minute
)

// Answerer runs the dispatch+relay pipeline for one verified message.
// Satisfied by usecase.Service.
type Answerer interface {
	Answer(ctx context.Context, msg domain.InboundMessage) error
}

// Ledger atomically records a delivery ID and reports whether it was the
// first sighting. Slack redelivers events up to three times; only the first
// sighting may start a relay.
type Ledger interface {
	MarkSeen(ctx context.Context, eventID string) (first bool, err error)
}

// Webhook is the Slack Events API endpoint. It verifies the request
// signature and timestamp freshness before any core logic runs, answers the
// URL-verification challenge, deduplicates redeliveries, and hands accepted
// messages to the Answerer on a detached goroutine so Slack gets its 200
// within the 3-second deadline.
type Webhook struct {
	signingSecret []byte
	answerer      Answerer
	ledger        Ledger
	botUserID     string
	logger        *slog.Logger

	now func() time.Time

	wg sync.WaitGroup
}

// NewWebhook creates the events endpoint. botUserID is used to strip the
// bot's own mention and skip its own messages.
func NewWebhook(signingSecret string, answerer Answerer, ledger Ledger, botUserID string, logger *slog.Logger) *Webhook {
	return &Webhook{
		signingSecret: []byte(signingSecret),
		answerer:      answerer,
		ledger:        ledger,
		botUserID:     botUserID,
		logger:        logger,
		now:           time.Now,
	}
}

// Wait blocks until all in-flight answer pipelines finish. Call during
// shutdown.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, req.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	if err := w.verify(
		req.Header.Get("X-Slack-Request-Timestamp"),
		req.Header.Get("X-Slack-Signature"),
		body,
	); err != nil {
		w.logger.Warn("webhook rejected", "error", err)
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		rw.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(rw, challenge.Challenge)

	case slackevents.CallbackEvent:
		eventID := ""
		if cb, ok := outer.Data.(*slackevents.EventsAPICallbackEvent); ok {
			eventID = cb.EventID
		}
		w.handleCallback(req.Context(), eventID, outer.InnerEvent)
		rw.WriteHeader(http.StatusOK)

	default:
		rw.WriteHeader(http.StatusOK)
	}
}

// verify checks the v0:<timestamp>:<body> HMAC-SHA256 signature and the
// timestamp freshness window. Comparison is constant-time.
func (w *Webhook) verify(timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.NewDomainError("Webhook.verify", domain.ErrAuth, "malformed timestamp")
	}

	age := w.now().Sub(time.Unix(ts, 0))
	if age > freshnessWindow || age < -freshnessWindow {
		return domain.NewDomainError("Webhook.verify", domain.ErrAuth, "timestamp outside freshness window")
	}

	mac := hmac.New(sha256.New, w.signingSecret)
	fmt.Fprintf(mac, "%s:%s:%s", signatureVersion, timestamp, body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.NewDomainError("Webhook.verify", domain.ErrAuth, "signature mismatch")
	}
	return nil
}

// handleCallback filters the inner event down to an InboundMessage and, if
// it survives dedup, starts a detached answer pipeline.
func (w *Webhook) handleCallback(ctx context.Context, eventID string, inner slackevents.EventsAPIInnerEvent) {
	var msg domain.InboundMessage

	switch ev := inner.Data.(type) {
	case *slackevents.AppMentionEvent:
		msg = domain.InboundMessage{
			Text:     ev.Text,
			SenderID: ev.User,
			Thread:   domain.Thread{Channel: ev.Channel, ThreadTS: threadTS(ev.ThreadTimeStamp, ev.TimeStamp)},
			EventID:  eventID,
		}
	case *slackevents.MessageEvent:
		// Direct messages only; channel traffic reaches us via app_mention.
		if ev.ChannelType != "im" || ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == w.botUserID {
			return
		}
		msg = domain.InboundMessage{
			Text:     ev.Text,
			SenderID: ev.User,
			Thread:   domain.Thread{Channel: ev.Channel, ThreadTS: threadTS(ev.ThreadTimeStamp, ev.TimeStamp)},
			EventID:  eventID,
		}
	default:
		return
	}

	if msg.SenderID == "" || msg.SenderID == w.botUserID {
		return
	}

	msg.Text = strings.TrimSpace(strings.ReplaceAll(msg.Text, "<@"+w.botUserID+">", ""))
	if msg.Text == "" {
		return
	}

	if msg.EventID != "" {
		first, err := w.ledger.MarkSeen(ctx, msg.EventID)
		if err != nil {
			w.logger.Warn("dedup ledger error, processing anyway", "error", err, "event_id", msg.EventID)
		} else if !first {
			w.logger.Debug("duplicate delivery skipped", "event_id", msg.EventID)
			return
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		answerCtx, cancel := context.WithTimeout(context.Background(), answerTimeout)
		defer cancel()

		if err := w.answerer.Answer(answerCtx, msg); err != nil {
			w.logger.Error("answer pipeline failed", "error", err, "event_id", msg.EventID)
		}
	}()
}

// threadTS picks the thread to answer in: the existing thread, or a new one
// rooted at the question itself.
func threadTS(threadTimestamp, messageTimestamp string) string {
	if threadTimestamp != "" {
		return threadTimestamp
	}
	return messageTimestamp
}
