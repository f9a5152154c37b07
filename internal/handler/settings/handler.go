package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-echo/backend/internal/handler/apierr"
	model "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
	settingsService "github.com/zhouzirui/persona-echo/backend/internal/service/settings"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

// Handler 读取和更新补全后端的连接设置
type Handler struct {
	manager *settingsService.Manager
	logger  *slog.Logger
}

// New 创建设置处理器
func New(manager *settingsService.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGet)
	r.Post("/settings", h.handleUpdate)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.manager.Current())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload model.Settings
	if err := utils.DecodeJSON(w, r, 4<<10, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.manager.Update(r.Context(), payload)
	if err != nil {
		status, msg := apierr.Status(err, "")
		if status >= http.StatusInternalServerError {
			h.logger.Error("settings update failed", "error", err)
			msg = "Failed to save settings."
		}
		utils.RespondError(w, status, msg)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":          "Settings updated successfully!",
		"current_settings": updated,
	})
}
