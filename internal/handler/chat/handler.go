package chat

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-echo/backend/internal/handler/apierr"
	"github.com/zhouzirui/persona-echo/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

const (
	maxUploadBytes = 32 << 20
	maxBodyBytes   = 1 << 20
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *slog.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chatSvc: chatSvc, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload_chat_history/", h.handleUpload)
	r.Get("/get_chat_history/{sessionID}", h.handleHistory)
	r.Post("/chat/{sessionID}", h.handleChat)
}

// UploadResponse is shared by the upload and demo endpoints.
type UploadResponse struct {
	Message      string   `json:"message"`
	SessionID    string   `json:"session_id"`
	Participants []string `json:"participants"`
}

// NewUploadResponse renders a freshly created session.
func NewUploadResponse(message string, sess chat.Session) UploadResponse {
	return UploadResponse{Message: message, SessionID: sess.ID, Participants: sess.Participants}
}

// handleUpload 解析上传的聊天导出文件，文件内容只在内存中处理
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "A chat history file is required in the 'file' field.")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Chat history file is too large.")
			return
		}
		h.logger.Error("read upload failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error processing file.")
		return
	}

	sess, err := h.chatSvc.Import(raw, "upload")
	if err != nil {
		h.respondServiceError(w, err, "")
		return
	}

	respondJSON(w, http.StatusOK, NewUploadResponse("Chat history processed successfully! File not stored on server.", sess))
}

// handleHistory 返回会话的消息列表
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	persona := r.URL.Query().Get("persona")

	sess, err := h.chatSvc.History(sessionID, persona)
	if err != nil {
		h.respondServiceError(w, err, persona)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"messages":     sess.Messages,
		"participants": sess.Participants,
	})
}

// handleChat 以 persona 身份回复一条消息
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
		Speaker string `json:"speaker"`
	}
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	persona := r.URL.Query().Get("persona")
	reply, err := h.chatSvc.Reply(r.Context(), chatService.ReplyRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		Persona:   persona,
		Message:   payload.Message,
		Speaker:   strings.TrimSpace(payload.Speaker),
	})
	if err != nil {
		h.respondServiceError(w, err, persona)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"response": reply.Body})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, persona string) {
	status, msg := apierr.Status(err, persona)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	respondError(w, status, msg)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	utils.RespondJSON(w, status, payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	utils.RespondError(w, status, message)
}
