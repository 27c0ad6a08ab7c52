package usecase

import (
	"context"
	"log/slog"

	"askdesk/internal/domain"
)

// Service ties the pipeline together for one inbound message: build the
// enrichment prefix, dispatch, relay the handler's stream into the chat
// message, and record the finished turn. One Service is shared by all
// messages; each call creates its own Relay.
type Service struct {
	dispatcher *Dispatcher
	sink       domain.ChatSink
	convo      *ConversationLog
	relayCfg   RelayConfig
	logger     *slog.Logger
}

// NewService wires the answer pipeline.
func NewService(dispatcher *Dispatcher, sink domain.ChatSink, convo *ConversationLog, relayCfg RelayConfig, logger *slog.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		sink:       sink,
		convo:      convo,
		relayCfg:   relayCfg,
		logger:     logger,
	}
}

// Answer processes one verified inbound message end to end. Whatever goes
// wrong, the user is left with a terminal message rather than a permanently
// spinning placeholder.
func (s *Service) Answer(ctx context.Context, msg domain.InboundMessage) error {
	relay := NewRelay(s.sink, s.relayCfg, s.logger)

	enrichment := s.convo.Enrichment(msg.Thread)

	dr, err := s.dispatcher.DispatchStream(ctx, msg.Text, enrichment, domain.InvokeOptions{
		Channel:  msg.Thread.Channel,
		ThreadID: msg.Thread.ThreadTS,
		RelayID:  relay.ID(),
	})
	if err != nil {
		// The relay never started, so there is no placeholder to update.
		s.logger.Error("dispatch failed", "error", err, "relay_id", relay.ID())
		if _, postErr := s.sink.Post(ctx, msg.Thread,
			"⚠️ Sorry, I couldn't route that question. Please try again."); postErr != nil {
			s.logger.Error("error message post failed", "error", postErr)
		}
		return err
	}

	final, err := relay.Run(ctx, msg.Thread, dr)
	if err != nil {
		return err
	}

	s.convo.Record(msg.Thread, msg.Text, final)
	return nil
}
