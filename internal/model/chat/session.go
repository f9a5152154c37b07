package chat

import (
	"slices"
	"time"
)

// Session binds an opaque token to one parsed transcript and its live extension.
type Session struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccess   time.Time `json:"lastAccess"`
}

// HasParticipant reports whether name is one of the senders seen at parse time.
func (s Session) HasParticipant(name string) bool {
	return slices.Contains(s.Participants, name)
}

// Counterpart returns the first participant, in encounter order, that is not persona.
func (s Session) Counterpart(persona string) (string, bool) {
	for _, p := range s.Participants {
		if p != persona {
			return p, true
		}
	}
	return "", false
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	s.Participants = slices.Clone(s.Participants)
	s.Messages = slices.Clone(s.Messages)
	return s
}
