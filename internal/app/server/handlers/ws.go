package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"chaty/internal/app/server/ws"
	"chaty/internal/core/services"
	"chaty/pkg/logging"
	"chaty/pkg/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	log      *slog.Logger
	sessions *services.SessionService
	manager  *services.ManagerService
	upgrader websocket.Upgrader
}

func NewWSHandler(
	log *slog.Logger,
	sessions *services.SessionService,
	manager *services.ManagerService,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		log:      log,
		sessions: sessions,
		manager:  manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker admits requests without an Origin header (native clients)
// and browsers from an allowed origin. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.log)
	identity := r.Context().Value(middleware.UserIDKey)
	userID, _ := identity.(string)
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("user_id", userID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnContext(r.Context(), "ws handler - upgrade - failed", logging.Err(err))
		return
	}
	// The connection outlives the request context once hijacked.
	ctx := context.WithoutCancel(r.Context())
	client := ws.NewClient(ctx, log, ws.NewWebSocket(log, conn), userID)

	session, err := h.sessions.Connect(ctx, client, identity)
	if err != nil {
		return
	}
	defer h.sessions.Disconnect(ctx, session)

	ctx = logging.WithContext(ctx, log.With(logging.Connection(client.ID())))
	client.WebSocket().ReadLoop(client.Context(), func(data []byte) {
		h.manager.HandleMessage(ctx, session, data)
	})
}
