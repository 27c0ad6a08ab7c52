package slackchat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdesk/internal/domain"
)

const (
	testSecret = "8f742231b10e8888abcd99yyyzzz85a5"
	testBotID  = "UBOT01"
)

var testNow = time.Unix(1700000000, 0)

type fakeAnswerer struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
}

func (a *fakeAnswerer) Answer(_ context.Context, msg domain.InboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return nil
}

func (a *fakeAnswerer) messages() []domain.InboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.InboundMessage(nil), a.msgs...)
}

type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (l *fakeLedger) MarkSeen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

func newTestWebhook(answerer *fakeAnswerer, ledger *fakeLedger) *Webhook {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hook := NewWebhook(testSecret, answerer, ledger, testBotID, logger)
	hook.now = func() time.Time { return testNow }
	return hook
}

// sign produces the v0 signature header for body at timestamp ts.
func sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(ts string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sign(ts, body))
	return req
}

func freshTS() string {
	return strconv.FormatInt(testNow.Unix(), 10)
}

func mentionBody(eventID, text string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"event_callback","event_id":%q,"team_id":"T1","api_app_id":"A1",`+
			`"event":{"type":"app_mention","user":"U123","text":%q,`+
			`"ts":"1700000000.000200","channel":"C042"}}`,
		eventID, text))
}

func TestWebhookAcceptsSignedMention(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	body := mentionBody("Ev001", "<@UBOT01> which startups raised funding?")
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(freshTS(), body))
	hook.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	msgs := answerer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "which startups raised funding?", msgs[0].Text, "bot mention stripped")
	assert.Equal(t, "U123", msgs[0].SenderID)
	assert.Equal(t, "C042", msgs[0].Thread.Channel)
	assert.Equal(t, "1700000000.000200", msgs[0].Thread.ThreadTS, "new thread rooted at the question")
	assert.Equal(t, "Ev001", msgs[0].EventID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	body := mentionBody("Ev002", "<@UBOT01> hi")
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", freshTS())
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	hook.Wait()

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, answerer.messages())
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	stale := strconv.FormatInt(testNow.Add(-6*time.Minute).Unix(), 10)
	body := mentionBody("Ev003", "<@UBOT01> hi")
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(stale, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, answerer.messages())
}

func TestWebhookRejectsFutureTimestamp(t *testing.T) {
	hook := newTestWebhook(&fakeAnswerer{}, &fakeLedger{})

	future := strconv.FormatInt(testNow.Add(6*time.Minute).Unix(), 10)
	body := mentionBody("Ev004", "<@UBOT01> hi")
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(future, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsMalformedTimestamp(t *testing.T) {
	hook := newTestWebhook(&fakeAnswerer{}, &fakeLedger{})

	body := mentionBody("Ev005", "<@UBOT01> hi")
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", "not-a-number")
	req.Header.Set("X-Slack-Signature", sign("not-a-number", body))
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookEchoesURLVerificationChallenge(t *testing.T) {
	hook := newTestWebhook(&fakeAnswerer{}, &fakeLedger{})

	body := []byte(`{"type":"url_verification","challenge":"TOKEN42","token":"x"}`)
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(freshTS(), body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TOKEN42", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestWebhookDeduplicatesRedelivery(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	body := mentionBody("Ev006", "<@UBOT01> when is demo day?")
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		hook.ServeHTTP(rec, signedRequest(freshTS(), body))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	hook.Wait()

	assert.Len(t, answerer.messages(), 1, "redeliveries share one event_id")
}

func TestWebhookLedgerErrorStillProcesses(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{err: errors.New("db locked")})

	body := mentionBody("Ev007", "<@UBOT01> hi there")
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(freshTS(), body))
	hook.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, answerer.messages(), 1, "dedup is best-effort")
}

func TestWebhookAnswersDirectMessage(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	body := []byte(`{"type":"event_callback","event_id":"Ev008","team_id":"T1","api_app_id":"A1",` +
		`"event":{"type":"message","channel_type":"im","user":"U123",` +
		`"text":"who are the mentors?","ts":"1700000000.000300","channel":"D042"}}`)
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(freshTS(), body))
	hook.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	msgs := answerer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "who are the mentors?", msgs[0].Text)
	assert.Equal(t, "D042", msgs[0].Thread.Channel)
}

func TestWebhookIgnoresBotAndChannelMessages(t *testing.T) {
	tests := []struct {
		name  string
		event string
	}{
		{"own message", `{"type":"message","channel_type":"im","user":"UBOT01","text":"hi","ts":"1.0","channel":"D042"}`},
		{"bot message", `{"type":"message","channel_type":"im","bot_id":"B01","text":"hi","ts":"1.0","channel":"D042"}`},
		{"channel message", `{"type":"message","channel_type":"channel","user":"U123","text":"hi","ts":"1.0","channel":"C042"}`},
		{"edited message", `{"type":"message","channel_type":"im","subtype":"message_changed","user":"U123","text":"hi","ts":"1.0","channel":"D042"}`},
		{"mention with only the mention", `{"type":"app_mention","user":"U123","text":"<@UBOT01>","ts":"1.0","channel":"C042"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answerer := &fakeAnswerer{}
			hook := newTestWebhook(answerer, &fakeLedger{})

			body := []byte(`{"type":"event_callback","event_id":"Ev009","team_id":"T1","api_app_id":"A1","event":` + tc.event + `}`)
			rec := httptest.NewRecorder()
			hook.ServeHTTP(rec, signedRequest(freshTS(), body))
			hook.Wait()

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, answerer.messages())
		})
	}
}

func TestWebhookThreadedMentionKeepsThread(t *testing.T) {
	answerer := &fakeAnswerer{}
	hook := newTestWebhook(answerer, &fakeLedger{})

	body := []byte(`{"type":"event_callback","event_id":"Ev010","team_id":"T1","api_app_id":"A1",` +
		`"event":{"type":"app_mention","user":"U123","text":"<@UBOT01> and the second one?",` +
		`"ts":"1700000000.000500","thread_ts":"1700000000.000100","channel":"C042"}}`)
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, signedRequest(freshTS(), body))
	hook.Wait()

	msgs := answerer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1700000000.000100", msgs[0].Thread.ThreadTS)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	hook := newTestWebhook(&fakeAnswerer{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodGet, "/slack/events", nil)
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
