package ai

import "fmt"

// PersonaPrompt renders the system instruction for impersonating one side of a transcript.
type PersonaPrompt struct {
	Persona     string
	Counterpart string
}

// System returns the instruction text sent ahead of the conversation turns.
func (p PersonaPrompt) System() string {
	return fmt.Sprintf(
		"You are now acting as '%s' in a WhatsApp conversation. "+
			"The conversation is with '%s'. "+
			"Your responses should be natural, coherent, and in character based on the provided chat history. "+
			"Keep your responses concise and relevant to the last message. "+
			"Do not explicitly state who you are or who you are talking to. "+
			"Just respond as if you are that person.",
		p.Persona, p.Counterpart,
	)
}
