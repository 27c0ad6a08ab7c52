// Package slackchat adapts the Slack Web and Events APIs to the domain's
// chat-sink and inbound-webhook contracts.
package slackchat

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	"askdesk/internal/domain"
)

// Sink implements domain.ChatSink over the Slack Web API: one PostMessage
// for the placeholder, then chat.update edits against the same timestamp.
type Sink struct {
	api    *slack.Client
	logger *slog.Logger
}

// NewSink creates a Sink from a bot token. Extra options are passed through
// to the Slack client, which lets tests point it at a local API server.
func NewSink(botToken string, logger *slog.Logger, opts ...slack.Option) *Sink {
	return &Sink{
		api:    slack.New(botToken, opts...),
		logger: logger,
	}
}

// Post sends the initial message into the thread and returns its handle.
func (s *Sink) Post(ctx context.Context, thread domain.Thread, text string) (domain.MessageRef, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if thread.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(thread.ThreadTS))
	}

	channel, ts, err := s.api.PostMessageContext(ctx, thread.Channel, opts...)
	if err != nil {
		return domain.MessageRef{}, domain.NewDomainError("Sink.Post", domain.ErrTransport, err.Error())
	}
	return domain.MessageRef{Channel: channel, Timestamp: ts}, nil
}

// Update replaces the message's full text in place.
func (s *Sink) Update(ctx context.Context, ref domain.MessageRef, text string) error {
	_, _, _, err := s.api.UpdateMessageContext(ctx, ref.Channel, ref.Timestamp,
		slack.MsgOptionText(text, false))
	if err != nil {
		return domain.NewDomainError("Sink.Update", domain.ErrTransport, err.Error())
	}
	return nil
}

// BotUserID resolves the bot's own user ID, used by the webhook for
// mention stripping and self-message filtering.
func (s *Sink) BotUserID() (string, error) {
	resp, err := s.api.AuthTest()
	if err != nil {
		return "", domain.WrapOp("auth test", err)
	}
	return resp.UserID, nil
}
