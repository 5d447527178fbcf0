package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/elder-companion/backend/internal/handler/chat"
	"github.com/zhouzirui/elder-companion/backend/internal/handler/persona"
	"github.com/zhouzirui/elder-companion/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/elder-companion/backend/internal/middleware"
	personaModel "github.com/zhouzirui/elder-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/elder-companion/backend/internal/service/chat"
	"github.com/zhouzirui/elder-companion/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, allowedOrigins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	// Create handlers
	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc, logger.Named("chat"))
	streamHandler := stream.New(chatSvc, allowedOrigins, logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": chatSvc.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
