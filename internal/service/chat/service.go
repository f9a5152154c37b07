package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
	"github.com/zhouzirui/persona-echo/backend/internal/model/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
)

var (
	ErrInvalidEncoding = errors.New("chat history must be UTF-8 encoded text")
	ErrInvalidPersona  = errors.New("persona is not a participant of this chat")
	ErrInvalidSpeaker  = errors.New("speaker must be a participant other than the persona")
	ErrEmptyMessage    = errors.New("message must not be empty")
)

// BackendError reports a failed completion. The inbound message has already
// been rolled back when it is returned.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("completion backend failed: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Completer produces the persona's next line.
type Completer interface {
	Complete(ctx context.Context, p ai.Prompt) (string, error)
	Stream(ctx context.Context, p ai.Prompt, onDelta func(string) error) (string, error)
}

// Observer is notified about session creation and stored replies.
type Observer interface {
	SessionCreated(sess chat.Session, source string)
	ChatReplied(sessionID, persona, counterpart string, reply chat.Message, streamed bool)
}

// Options tunes a Service. Zero values are usable.
type Options struct {
	// TokenBudget caps the estimated prompt size; 0 sends the whole session.
	TokenBudget int
	Clock       session.Clock
	Observer    Observer
	Logger      *slog.Logger
	Parser      *transcript.Parser
}

// Service turns stored transcripts into persona replies.
type Service struct {
	store   *session.Store
	backend Completer
	parser  *transcript.Parser
	clock   session.Clock
	budget  int
	obs     Observer
	logger  *slog.Logger
}

// NewService wires the assembler around a session store and a completion backend.
func NewService(store *session.Store, backend Completer, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = session.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Parser == nil {
		opts.Parser = transcript.NewParser()
	}
	if opts.TokenBudget < 0 {
		opts.TokenBudget = 0
	}
	return &Service{
		store:   store,
		backend: backend,
		parser:  opts.Parser,
		clock:   opts.Clock,
		budget:  opts.TokenBudget,
		obs:     opts.Observer,
		logger:  opts.Logger,
	}
}

// ReplyRequest identifies who is talking to whom.
// Speaker is optional and selects the inbound participant in chats with more than two senders.
type ReplyRequest struct {
	SessionID string
	Persona   string
	Message   string
	Speaker   string
}

// Import parses raw export bytes and stores the result as a new session.
func (s *Service) Import(raw []byte, source string) (chat.Session, error) {
	if !utf8.Valid(raw) {
		return chat.Session{}, ErrInvalidEncoding
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")

	parsed, err := s.parser.Parse(text)
	if err != nil {
		return chat.Session{}, err
	}

	sess, err := s.store.Create(parsed.Participants, parsed.Messages)
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created", "session_id", sess.ID, "source", source,
		"participants", len(sess.Participants), "messages", len(sess.Messages))
	if s.obs != nil {
		s.obs.SessionCreated(sess, source)
	}
	return sess, nil
}

// History returns the session snapshot after checking persona membership.
func (s *Service) History(sessionID, persona string) (chat.Session, error) {
	sess, err := s.store.GetAndTouch(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if !isParticipant(sess, persona) {
		return chat.Session{}, ErrInvalidPersona
	}
	return sess, nil
}

// Reply appends the inbound message, asks the backend for the persona's answer
// and stores it. On backend failure the inbound message is removed again.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (chat.Message, error) {
	return s.reply(ctx, req, nil)
}

// ReplyStream is Reply with incremental delivery of the answer through onDelta.
func (s *Service) ReplyStream(ctx context.Context, req ReplyRequest, onDelta func(string) error) (chat.Message, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return s.reply(ctx, req, onDelta)
}

func (s *Service) reply(ctx context.Context, req ReplyRequest, onDelta func(string) error) (chat.Message, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	sess, release, err := s.store.Pin(req.SessionID)
	if err != nil {
		return chat.Message{}, err
	}
	defer release()

	other, err := resolveCounterpart(sess, req.Persona, req.Speaker)
	if err != nil {
		return chat.Message{}, err
	}

	inbound, err := s.store.Append(sess.ID, chat.Message{
		Timestamp: chat.FormatTimestamp(s.clock.Now()),
		Sender:    other,
		Body:      text,
	})
	if err != nil {
		return chat.Message{}, err
	}
	sess.Messages = append(sess.Messages, inbound)

	prompt := ai.Prompt{
		System: ai.PersonaPrompt{Persona: req.Persona, Counterpart: other}.System(),
	}
	prompt.Turns = windowTurns(prompt.System, buildTurns(sess.Messages, other), s.budget)

	var answer string
	if onDelta != nil {
		answer, err = s.backend.Stream(ctx, prompt, onDelta)
	} else {
		answer, err = s.backend.Complete(ctx, prompt)
	}
	if err != nil {
		s.rollback(sess.ID, inbound.ID)
		s.logger.Warn("completion failed", "session_id", sess.ID, "persona", req.Persona, "error", err)
		return chat.Message{}, &BackendError{Err: err}
	}

	reply, err := s.store.Append(sess.ID, chat.Message{
		Timestamp: chat.FormatTimestamp(s.clock.Now()),
		Sender:    req.Persona,
		Body:      answer,
	})
	if err != nil {
		return chat.Message{}, err
	}

	s.logger.Info("persona replied", "session_id", sess.ID, "persona", req.Persona,
		"turns", len(prompt.Turns), "length", len(reply.Body), "streamed", onDelta != nil)
	if s.obs != nil {
		s.obs.ChatReplied(sess.ID, req.Persona, other, reply, onDelta != nil)
	}
	return reply, nil
}

func (s *Service) rollback(sessionID, messageID string) {
	if err := s.store.Remove(sessionID, messageID); err != nil {
		s.logger.Error("rollback failed", "session_id", sessionID, "message_id", messageID, "error", err)
	}
}

// resolveCounterpart picks the participant the persona is answering.
func resolveCounterpart(sess chat.Session, persona, speaker string) (string, error) {
	if !isParticipant(sess, persona) {
		return "", ErrInvalidPersona
	}
	if speaker != "" {
		if speaker == persona || !sess.HasParticipant(speaker) {
			return "", ErrInvalidSpeaker
		}
		return speaker, nil
	}
	other, ok := sess.Counterpart(persona)
	if !ok {
		return "", ErrInvalidPersona
	}
	return other, nil
}

// isParticipant is the persona check shared by History and Reply.
func isParticipant(sess chat.Session, name string) bool {
	return strings.TrimSpace(name) != "" && sess.HasParticipant(name)
}

// buildTurns maps messages to model roles: the counterpart speaks as the user,
// everyone else as the assistant.
func buildTurns(messages []chat.Message, other string) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		role := ai.RoleAssistant
		if msg.Sender == other {
			role = ai.RoleUser
		}
		turns = append(turns, ai.Turn{Role: role, Content: msg.Body})
	}
	return turns
}
