package handler

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/persona-echo/backend/internal/handler/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/handler/demo"
	"github.com/zhouzirui/persona-echo/backend/internal/handler/settings"
	"github.com/zhouzirui/persona-echo/backend/internal/handler/stream"
	"github.com/zhouzirui/persona-echo/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/persona-echo/backend/internal/middleware"
	chatService "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	settingsService "github.com/zhouzirui/persona-echo/backend/internal/service/settings"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

// Dependencies groups what the HTTP layer needs.
type Dependencies struct {
	Chat           *chatService.Service
	Settings       *settingsService.Manager
	AllowedOrigins []string
	// StaticDir is served at "/" when it exists.
	StaticDir string
	Logger    *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chat.New(deps.Chat, logger).RegisterRoutes(r)
	stream.New(deps.Chat, logger).RegisterRoutes(r)
	ws.New(deps.Chat, deps.AllowedOrigins, logger).RegisterRoutes(r)
	demo.New(deps.Chat, logger).RegisterRoutes(r)
	settings.New(deps.Settings, logger).RegisterRoutes(r)

	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(deps.StaticDir)))
			logger.Info("serving static frontend", "dir", deps.StaticDir)
		} else {
			logger.Info("static frontend not found, skipping", "dir", deps.StaticDir)
		}
	}

	return r
}
