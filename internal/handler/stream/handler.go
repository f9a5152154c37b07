package stream

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-echo/backend/internal/handler/apierr"
	chatService "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

// Handler manages streaming persona replies via Server-Sent Events
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat_stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

var errClientGone = errors.New("client disconnected")

// handleStream validates the request up front so failures still get a proper
// status code, then streams deltas followed by the assembled reply.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	persona := r.URL.Query().Get("persona")
	message := strings.TrimSpace(r.URL.Query().Get("message"))

	if _, err := h.chatSvc.History(sessionID, persona); err != nil {
		status, msg := apierr.Status(err, persona)
		utils.RespondError(w, status, msg)
		return
	}
	if message == "" {
		status, msg := apierr.Status(chatService.ErrEmptyMessage, persona)
		utils.RespondError(w, status, msg)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.send(w, flusher, StreamResponse{Event: "start", SessionID: sessionID, Persona: persona})

	reply, err := h.chatSvc.ReplyStream(ctx, chatService.ReplyRequest{
		SessionID: sessionID,
		Persona:   persona,
		Message:   message,
		Speaker:   strings.TrimSpace(r.URL.Query().Get("speaker")),
	}, func(delta string) error {
		if ctx.Err() != nil {
			return errClientGone
		}
		if delta == "" {
			return nil
		}
		return h.send(w, flusher, StreamResponse{Event: "delta", SessionID: sessionID, Content: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("stream client went away", "session_id", sessionID)
			return
		}
		_, msg := apierr.Status(err, persona)
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: msg})
		return
	}

	h.send(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Persona: persona, Content: reply.Body})
	h.send(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
	h.logger.Debug("stream completed", "session_id", sessionID, "persona", persona)
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) error {
	if err := utils.SendSSEEvent(w, flusher, resp.Event, resp); err != nil {
		h.logger.Warn("failed to send sse event", "event", resp.Event, "error", err)
		return err
	}
	return nil
}
