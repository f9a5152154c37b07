package events

import (
	"log/slog"
	"strings"
	"time"

	"github.com/zhouzirui/persona-echo/backend/internal/model/chat"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectSessionCreated = "session.created"
	SubjectSessionEvicted = "session.evicted"
	SubjectChatReplied    = "chat.replied"
)

// SessionCreated is published after a transcript upload or demo load.
type SessionCreated struct {
	SessionID    string    `json:"session_id"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
}

// SessionEvicted is published once per idle session removed by the sweeper.
type SessionEvicted struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatReplied is published after a persona reply has been stored.
type ChatReplied struct {
	SessionID   string    `json:"session_id"`
	Persona     string    `json:"persona"`
	Counterpart string    `json:"counterpart"`
	Streamed    bool      `json:"streamed"`
	ReplyLength int       `json:"reply_length"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter maps domain callbacks onto subjects. Publish failures are logged and
// never reach the caller.
type Emitter struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewEmitter builds an Emitter. A nil publisher behaves like Nop.
func NewEmitter(pub Publisher, prefix string, logger *slog.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		pub:    pub,
		prefix: strings.Trim(prefix, "."),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Emitter) subject(suffix string) string {
	if e.prefix == "" {
		return suffix
	}
	return e.prefix + "." + suffix
}

func (e *Emitter) publish(suffix string, payload any) {
	subject := e.subject(suffix)
	if err := e.pub.Publish(subject, payload); err != nil {
		e.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (e *Emitter) SessionCreated(sess chat.Session, source string) {
	e.publish(SubjectSessionCreated, SessionCreated{
		SessionID:    sess.ID,
		Participants: sess.Participants,
		MessageCount: len(sess.Messages),
		Source:       source,
		Timestamp:    e.now(),
	})
}

func (e *Emitter) SessionsEvicted(ids []string) {
	now := e.now()
	for _, id := range ids {
		e.publish(SubjectSessionEvicted, SessionEvicted{SessionID: id, Timestamp: now})
	}
}

func (e *Emitter) ChatReplied(sessionID, persona, counterpart string, reply chat.Message, streamed bool) {
	e.publish(SubjectChatReplied, ChatReplied{
		SessionID:   sessionID,
		Persona:     persona,
		Counterpart: counterpart,
		Streamed:    streamed,
		ReplyLength: len(reply.Body),
		Timestamp:   e.now(),
	})
}
