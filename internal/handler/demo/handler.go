package demo

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-echo/backend/internal/demo"
	chatHandler "github.com/zhouzirui/persona-echo/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

// Handler exposes the bundled sample transcripts.
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/get_demo_chats", h.handleList)
	r.Post("/load_demo_chat", h.handleLoad)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"demos": demo.List()})
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DemoID string `json:"demoId"`
	}
	if err := utils.DecodeJSON(w, r, 4<<10, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	raw, ok := demo.Load(payload.DemoID)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "Invalid demo ID provided.")
		return
	}

	sess, err := h.chatSvc.Import(raw, "demo")
	if err != nil {
		h.logger.Error("load demo chat failed", "demo_id", payload.DemoID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading demo chat: %v", err))
		return
	}

	msg := fmt.Sprintf("Demo chat '%s' loaded successfully!", payload.DemoID)
	utils.RespondJSON(w, http.StatusOK, chatHandler.NewUploadResponse(msg, sess))
}
