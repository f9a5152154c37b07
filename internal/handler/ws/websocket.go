package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/persona-echo/backend/internal/handler/apierr"
	middlewarePkg "github.com/zhouzirui/persona-echo/backend/internal/middleware"
	chatservice "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	// pendingLimit caps chat frames queued behind the reply in progress.
	pendingLimit = 4
)

// Handler WebSocket 聊天处理器，一个连接绑定一个会话和一个 persona
type Handler struct {
	chatSvc  *chatservice.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader

	pongWait     time.Duration
	pingInterval time.Duration
}

// New 创建WebSocket处理器。浏览器发起的握手必须来自 allowedOrigins，
// 不带 Origin 的客户端（非浏览器）直接放行。
func New(chatSvc *chatservice.Service, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	isAllowed := middlewarePkg.OriginAllowed(allowedOrigins)
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || isAllowed(origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pongWait:     pongWait,
		pingInterval: pingInterval,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Speaker string `json:"speaker,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn serialises writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	logger    *slog.Logger
	mu        sync.Mutex
}

func (c *conn) write(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.ws.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.logger.Warn("websocket write failed", "type", msgType, "error", err)
	}
	return err
}

func (c *conn) sendError(message string) {
	c.write("error", map[string]string{"message": message})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	persona := r.URL.Query().Get("persona")

	if _, err := h.chatSvc.History(sessionID, persona); err != nil {
		status, msg := apierr.Status(err, persona)
		utils.RespondError(w, status, msg)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	c := &conn{ws: ws, sessionID: sessionID, logger: h.logger}
	h.logger.Info("websocket connected", "session_id", sessionID, "persona", persona)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	// Replies run off the read loop so pongs keep extending the deadline
	// while a slow completion is generating.
	pending := make(chan inboundMessage, pendingLimit)
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, c)
	}()
	go func() {
		defer wg.Done()
		h.replyLoop(ctx, c, persona, pending)
	}()

	c.write("connected", map[string]any{"persona": persona})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(h.pongWait))

		switch msg.Type {
		case "chat", "":
			select {
			case pending <- msg:
			default:
				c.sendError("too many messages waiting for a reply")
			}
		default:
			c.sendError("unsupported message type: " + msg.Type)
		}
	}
}

// replyLoop 按顺序处理排队的聊天消息，直到连接关闭
func (h *Handler) replyLoop(ctx context.Context, c *conn, persona string, pending <-chan inboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-pending:
			h.handleChat(ctx, c, persona, msg)
		}
	}
}

// handleChat 生成回复，增量片段以 delta 推送，完整回复以 reply 推送
func (h *Handler) handleChat(ctx context.Context, c *conn, persona string, msg inboundMessage) {
	reply, err := h.chatSvc.ReplyStream(ctx, chatservice.ReplyRequest{
		SessionID: c.sessionID,
		Persona:   persona,
		Message:   msg.Message,
		Speaker:   strings.TrimSpace(msg.Speaker),
	}, func(delta string) error {
		if delta == "" {
			return nil
		}
		return c.write("delta", map[string]string{"content": delta})
	})
	if err != nil {
		_, text := apierr.Status(err, persona)
		c.sendError(text)
		return
	}

	c.write("reply", reply)
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
