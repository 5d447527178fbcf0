package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/elder-companion/backend/internal/service/chat"
	"github.com/zhouzirui/elder-companion/backend/pkg/utils"
)

// Handler 会话服务的HTTP处理器
type Handler struct {
	sessions *chatService.Service
	logger   *zap.Logger
}

// New 创建会话处理器
func New(sessions *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Post("/messages", h.handleSubmitMessage)
		r.Post("/topics", h.handleSelectTopic)
		r.Post("/voice", h.handleToggleVoice)
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.sessions.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snap)
}

// handleGetSession 返回会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	manager, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, manager.Snapshot())
}

// handleSubmitMessage 提交用户消息
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	manager, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	snap, err := manager.Submit(r.Context(), payload.Text)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, snap)
}

// handleSelectTopic 选择推荐话题
func (h *Handler) handleSelectTopic(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Topic string `json:"topic"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	manager, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	snap, err := manager.SelectTopic(r.Context(), payload.Topic)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, snap)
}

// handleToggleVoice 切换模拟录音
func (h *Handler) handleToggleVoice(w http.ResponseWriter, r *http.Request) {
	manager, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	snap, err := manager.ToggleVoiceCapture(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("chat request failed", zap.Error(err))
	}
	utils.RespondError(w, status, err.Error())
}

// StatusFor maps session errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrReplyPending):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrPersonaNotFound):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
