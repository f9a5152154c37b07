// Package apierr maps domain errors onto HTTP status codes and user-facing text.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zhouzirui/persona-echo/backend/internal/analysis/transcript"
	chatservice "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
	settingsservice "github.com/zhouzirui/persona-echo/backend/internal/service/settings"
)

// Status returns the status code and message for err. persona is only used to
// render the invalid-persona message.
func Status(err error, persona string) (int, string) {
	var backendErr *chatservice.BackendError

	switch {
	case errors.Is(err, chatservice.ErrInvalidEncoding):
		return http.StatusBadRequest, "Could not decode file. Please ensure it's a UTF-8 encoded text file."
	case errors.Is(err, transcript.ErrInsufficientParticipants):
		return http.StatusBadRequest, "Could not identify two distinct participants in the chat."
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "Chat session not found or expired. Please upload chat history again."
	case errors.Is(err, chatservice.ErrInvalidPersona):
		return http.StatusBadRequest, fmt.Sprintf("Persona '%s' not found in this chat.", persona)
	case errors.Is(err, chatservice.ErrInvalidSpeaker):
		return http.StatusBadRequest, "Speaker must be another participant of this chat."
	case errors.Is(err, chatservice.ErrEmptyMessage):
		return http.StatusBadRequest, "Message must not be empty."
	case errors.Is(err, settingsservice.ErrMissingField):
		return http.StatusBadRequest, "Both 'ollama_host' and 'llm_model' are required."
	case errors.As(err, &backendErr):
		return http.StatusInternalServerError, fmt.Sprintf("Error generating response: %v", backendErr.Err)
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}
