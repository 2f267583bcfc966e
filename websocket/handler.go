package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campusline/session"
	"campusline/utils"
)

// Handler authenticates websocket upgrades and joins the caller's room.
type Handler struct {
	hub         *Hub
	tokens      *utils.TokenManager
	revoker     session.Revoker
	onHeartbeat HeartbeatFunc
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

func NewHandler(hub *Hub, tokens *utils.TokenManager, revoker session.Revoker, onHeartbeat HeartbeatFunc, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		origins[origin] = true
	}

	return &Handler{
		hub:         hub,
		tokens:      tokens,
		revoker:     revoker,
		onHeartbeat: onHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAll || origins[origin]
			},
		},
		logger: logger,
	}
}

func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Unauthorized(c, "missing token")
		return
	}

	claims, err := h.tokens.ParseToken(token)
	if err != nil {
		utils.Unauthorized(c, "invalid token")
		return
	}
	if h.revoker != nil && h.revoker.IsRevoked(c.Request.Context(), claims.UserID, claims.IssuedTime()) {
		utils.Unauthorized(c, "session revoked")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		UserID:      claims.UserID,
		Hub:         h.hub,
		Conn:        conn,
		Send:        make(chan []byte, sendBuffer),
		onHeartbeat: h.onHeartbeat,
		logger:      h.logger,
	}

	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	// a fresh connection counts as a liveness signal
	if h.onHeartbeat != nil {
		h.onHeartbeat(c.Request.Context(), claims.UserID)
	}

	go client.WritePump()
	go client.ReadPump()
}
