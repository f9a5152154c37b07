package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/persona-echo/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("chat session not found or expired")
	ErrMessageNotFound = errors.New("message not found in session")
)

// Clock supplies the current time so eviction can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	session chat.Session
	pins    int
}

// Store keeps parsed transcripts in memory, keyed by an unguessable token.
type Store struct {
	mu       sync.Mutex
	clock    Clock
	sessions map[string]*entry
}

// NewStore creates an empty store. A nil clock falls back to SystemClock.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		clock:    clock,
		sessions: make(map[string]*entry),
	}
}

// Create stores a freshly parsed transcript and returns its snapshot.
func (s *Store) Create(participants []string, messages []chat.Message) (chat.Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return chat.Session{}, err
	}

	now := s.clock.Now()
	sess := chat.Session{
		ID:           id.String(),
		Participants: append([]string(nil), participants...),
		Messages:     make([]chat.Message, 0, len(messages)+8),
		CreatedAt:    now,
		LastAccess:   now,
	}
	for _, msg := range messages {
		msg.ID = uuid.NewString()
		sess.Messages = append(sess.Messages, msg)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	return sess.Clone(), nil
}

// GetAndTouch returns a snapshot of the session and refreshes its last access time.
func (s *Store) GetAndTouch(id string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	s.touchLocked(e)
	return e.session.Clone(), nil
}

// Pin behaves like GetAndTouch and additionally shields the session from
// eviction until release is called.
func (s *Store) Pin(id string) (chat.Session, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, nil, ErrSessionNotFound
	}
	e.pins++
	s.touchLocked(e)

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.pins--
			s.touchLocked(e)
		})
	}
	return e.session.Clone(), release, nil
}

// Append adds a message to the session, assigning it an id.
func (s *Store) Append(id string, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	e.session.Messages = append(e.session.Messages, msg)
	s.touchLocked(e)
	return msg, nil
}

// Remove deletes one message by id. It is used to roll back a speculative append.
func (s *Store) Remove(id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	msgs := e.session.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == messageID {
			e.session.Messages = slices.Delete(msgs, i, i+1)
			s.touchLocked(e)
			return nil
		}
	}
	return ErrMessageNotFound
}

// Sweep evicts every unpinned session idle since before now-idleTimeout and
// returns the evicted ids.
func (s *Store) Sweep(now time.Time, idleTimeout time.Duration) []string {
	cutoff := now.Add(-idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.sessions {
		if e.pins > 0 {
			continue
		}
		if e.session.LastAccess.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) touchLocked(e *entry) {
	now := s.clock.Now()
	if now.After(e.session.LastAccess) {
		e.session.LastAccess = now
	}
}
