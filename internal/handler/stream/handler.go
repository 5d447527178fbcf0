package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatHandler "github.com/zhouzirui/elder-companion/backend/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/elder-companion/backend/internal/middleware"
	chatModel "github.com/zhouzirui/elder-companion/backend/internal/model/chat"
	chatService "github.com/zhouzirui/elder-companion/backend/internal/service/chat"
	"github.com/zhouzirui/elder-companion/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	maxFrameSize = 16 * 1024
)

// Handler pushes session snapshots over a websocket and accepts user actions
// on the same connection.
type Handler struct {
	sessions *chatService.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a stream handler. Handshakes are accepted from the same
// origins as the CORS middleware.
func New(sessions *chatService.Service, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger.Named("stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     middlewarePkg.OriginChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outgoingMessage struct {
	Type  string              `json:"type"`
	Data  *chatModel.Snapshot `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	manager, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("session_id", sessionID))
	log.Debug("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	// 所有写操作都在 writeLoop 中完成，gorilla 连接只允许一个写者。
	errs := make(chan string, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, conn, updates, errs, log)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for ctx.Err() == nil {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("read error", zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := h.dispatch(ctx, manager, msg); err != nil {
			select {
			case errs <- err.Error():
			default:
			}
		}
	}

	cancel()
	<-writerDone
	log.Debug("connection closed")
}

func (h *Handler) dispatch(ctx context.Context, manager *chatService.Manager, msg inboundMessage) error {
	var err error
	switch msg.Type {
	case "submit":
		_, err = manager.Submit(ctx, msg.Text)
	case "topic":
		_, err = manager.SelectTopic(ctx, msg.Text)
	case "voice":
		_, err = manager.ToggleVoiceCapture(ctx)
	default:
		err = errors.New("unsupported message type: " + msg.Type)
	}
	return err
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan chatModel.Snapshot, errs <-chan string, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(v outgoingMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			log.Debug("write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case snap, ok := <-updates:
			if !ok {
				// 会话已关闭
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(time.Second))
				return
			}
			if !write(outgoingMessage{Type: "snapshot", Data: &snap}) {
				return
			}
		case msg := <-errs:
			if !write(outgoingMessage{Type: "error", Error: msg}) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
