package room_service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/stream"
)

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	s.input = text
	s.mu.Unlock()
	s.emit(Event{Kind: EventInput, Input: text})
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// ClearInput discards the draft, the Escape key of the room view.
func (s *Session) ClearInput() {
	s.SetInput("")
}

// Send posts the current input. The optimistic entry appears and the input clears before the
// insert is issued; on failure the entry is removed and the text is put back. An empty input
// is a no-op returning nil.
func (s *Session) Send(ctx context.Context) *app_error.AppError {
	s.mu.Lock()
	if !s.alive.Load() || s.state != StateLive {
		s.mu.Unlock()
		return app_error.NewAppError(http.StatusConflict, "room is not live", "session").WithKind(app_error.KindItem)
	}
	body := strings.TrimSpace(s.input)
	if body == "" {
		s.mu.Unlock()
		return nil
	}

	clientID := s.newClientID()
	pending := s.stream.AddPending(s.groupID, s.userID, clientID, body)
	s.input = ""
	s.sendStatus = SendSending
	s.timers.Cancel(slotStatus)
	s.mu.Unlock()

	s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})
	s.emit(Event{Kind: EventInput, Input: ""})
	s.emit(Event{Kind: EventSendStatus, SendStatus: SendSending})

	// replying implies the room has been read
	if len(s.tracker.Unread()) > 0 {
		s.spawn(func(ctx context.Context) { s.tracker.MarkAll(ctx) })
	}

	msg, err := s.backend.SendMessage(ctx, chat_dto.SendMessageRequest{
		GroupID:  s.groupID,
		AuthorID: s.userID,
		ClientID: clientID,
		Body:     body,
	})

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return nil
	}

	if err != nil {
		s.stream.RemovePending(pending.ID)
		s.input = body
		s.sendStatus = SendError
		s.mu.Unlock()

		s.log.Warn().Str("reason", err.Message).Msg("send failed")
		s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})
		s.emit(Event{Kind: EventInput, Input: body})
		s.setSendStatusLater(SendError, s.cfg.ErrorStatusClear)
		return err.WithKind(app_error.KindItem)
	}

	outcome := s.stream.Apply(*msg)
	s.sendStatus = SendSent
	s.mu.Unlock()

	if outcome != stream.Ignored {
		s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})
	}
	s.setSendStatusLater(SendSent, s.cfg.SentStatusClear)
	return nil
}

// setSendStatusLater announces st and clears it after d, sharing the single status slot.
func (s *Session) setSendStatusLater(st SendStatus, d time.Duration) {
	s.emit(Event{Kind: EventSendStatus, SendStatus: st})
	s.timers.Schedule(slotStatus, d, func() {
		s.mu.Lock()
		if !s.alive.Load() || s.sendStatus != st {
			s.mu.Unlock()
			return
		}
		s.sendStatus = SendIdle
		s.mu.Unlock()
		s.emit(Event{Kind: EventSendStatus, SendStatus: SendIdle})
	})
}
