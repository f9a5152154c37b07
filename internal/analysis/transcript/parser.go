package transcript

import (
	"errors"
	"regexp"
	"strings"

	"github.com/zhouzirui/persona-echo/backend/internal/model/chat"
)

// ReasonInsufficientParticipants is reported when fewer than two senders are found.
const ReasonInsufficientParticipants = "insufficient_participants"

// ParseError explains why an export could not become a session.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	switch e.Reason {
	case ReasonInsufficientParticipants:
		return "could not identify two distinct participants in the chat"
	default:
		return "transcript parse failed: " + e.Reason
	}
}

// Is lets errors.Is match any ParseError carrying the same reason.
func (e *ParseError) Is(target error) bool {
	var other *ParseError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// ErrInsufficientParticipants is the only place the two-participant gate is enforced.
var ErrInsufficientParticipants = &ParseError{Reason: ReasonInsufficientParticipants}

// headerPattern matches "<date>, <time> - <sender>: <body>" at the start of a line.
// The sender runs up to the first colon, so names containing ':' are split there.
var headerPattern = regexp.MustCompile(
	`^(\d{1,2}/\d{1,2}/\d{2}(?:\d{2})?,[\s\p{Zs}]*\d{1,2}:\d{2}(?:[\s\p{Zs}]*(?i:am|pm))?)` +
		`[\s\p{Zs}]*-[\s\p{Zs}]*([^:]+):[\s\p{Zs}]*(.*)$`,
)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Transcript is the structured result of a parse.
type Transcript struct {
	Messages     []chat.Message
	Participants []string
}

// Parser turns an exported chat into ordered messages.
type Parser struct {
	noise []NoiseRule
}

// NewParser builds a parser with the default noise rules plus any extras.
func NewParser(extra ...NoiseRule) *Parser {
	rules := append(DefaultNoiseRules(), extra...)
	return &Parser{noise: rules}
}

// Parse runs the parser with default rules.
func Parse(raw string) (Transcript, error) {
	return NewParser().Parse(raw)
}

// Parse performs a single forward pass over the lines of raw.
func (p *Parser) Parse(raw string) (Transcript, error) {
	var (
		messages     []chat.Message
		participants []string
		seen         = make(map[string]struct{})
		current      *chat.Message
	)

	finalize := func() {
		if current == nil {
			return
		}
		messages = append(messages, *current)
		if _, ok := seen[current.Sender]; !ok {
			seen[current.Sender] = struct{}{}
			participants = append(participants, current.Sender)
		}
		current = nil
	}

	for _, line := range strings.Split(lineBreaks.Replace(raw), "\n") {
		line = strings.TrimSpace(line)
		if p.skip(line) {
			continue
		}

		// A header with a blank sender is treated as an ordinary line.
		if m := headerPattern.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[2]) != "" {
			finalize()
			current = &chat.Message{
				Timestamp: m[1],
				Sender:    strings.TrimSpace(m[2]),
				Body:      strings.TrimSpace(m[3]),
			}
			continue
		}

		if current != nil {
			current.Body += "\n" + line
		}
	}
	finalize()

	if len(participants) < 2 {
		return Transcript{}, ErrInsufficientParticipants
	}

	return Transcript{Messages: messages, Participants: participants}, nil
}

func (p *Parser) skip(line string) bool {
	if line == "" || isBracketed(line) {
		return true
	}
	for _, rule := range p.noise {
		if rule.Match(line) {
			return true
		}
	}
	return false
}
