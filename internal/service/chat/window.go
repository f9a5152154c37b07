package chat

import (
	"unicode/utf8"

	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
)

const truncationMarker = "..."

// estimateTokens approximates one token per four characters.
func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// windowTurns keeps the most recent turns that fit in budget alongside the system
// prompt. The oldest kept turn may be cut from the front and marked with "...".
// A non-positive budget disables the window.
func windowTurns(system string, turns []ai.Turn, budget int) []ai.Turn {
	if budget <= 0 {
		return turns
	}

	used := estimateTokens(system)
	start := len(turns)
	var partial *ai.Turn

	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		cost := estimateTokens(string(turn.Role)) + estimateTokens(turn.Content)
		if used+cost <= budget {
			used += cost
			start = i
			continue
		}

		remaining := budget - used
		if remaining > 0 {
			runes := []rune(turn.Content)
			keep := remaining * 4
			if keep < len(runes) {
				cut := ai.Turn{Role: turn.Role, Content: truncationMarker + string(runes[len(runes)-keep:])}
				partial = &cut
			} else {
				partial = &turn
			}
		}
		break
	}

	out := make([]ai.Turn, 0, len(turns)-start+1)
	if partial != nil {
		out = append(out, *partial)
	}
	return append(out, turns[start:]...)
}
