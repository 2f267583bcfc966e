package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"campusline/metrics"
	"campusline/middleware"
	"campusline/models"
	"campusline/services"
	"campusline/session"
	"campusline/utils"
	"campusline/websocket"
)

// Deps is everything the router needs; nil WebSocket or Gatherer leave the
// matching route unregistered.
type Deps struct {
	Users         *services.UserService
	Presence      *services.PresenceService
	Friends       *services.FriendshipService
	Notifications *services.NotificationService
	Admin         *services.AdminService

	Tokens  *utils.TokenManager
	Revoker session.Revoker

	WebSocket *websocket.Handler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	// Ping reports whether backing stores are reachable.
	Ping func(ctx context.Context) error

	CORSOrigins       []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(d.Logger), middleware.Recovery(d.Logger))
	r.Use(middleware.CORSMiddleware(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	r.GET("/health", health(d.Ping))
	if d.Gatherer != nil {
		r.GET("/metrics", middleware.MetricsHandler(d.Gatherer))
	}
	if d.WebSocket != nil {
		r.GET("/ws", d.WebSocket.ServeWS)
	}

	requireAuth := middleware.AuthMiddleware(d.Tokens, d.Revoker)

	authHandler := NewAuthHandler(d.Users, d.Presence, d.Logger)
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", requireAuth, authHandler.Logout)
		auth.POST("/refresh", requireAuth, authHandler.Refresh)
	}

	userHandler := NewUserHandler(d.Users, d.Logger)
	users := r.Group("/api/users")
	users.Use(requireAuth)
	{
		users.GET("/me", userHandler.Me)
		users.GET("/search", userHandler.Search)
	}

	statusHandler := NewStatusHandler(d.Presence, d.HeartbeatInterval, d.Logger)
	status := r.Group("/api/status")
	{
		status.GET("", requireAuth, statusHandler.Get)
		status.POST("/online", requireAuth, statusHandler.Online)
		status.POST("/offline", middleware.BeaconAuthMiddleware(d.Tokens, d.Revoker), statusHandler.Offline)
	}

	friendHandler := NewFriendHandler(d.Friends, d.Logger)
	friends := r.Group("/api/friends")
	friends.Use(requireAuth)
	{
		friends.GET("", friendHandler.List)
		friends.GET("/requests", friendHandler.Incoming)
		friends.GET("/requests/sent", friendHandler.Outgoing)
		friends.GET("/status/:user_id", friendHandler.Status)
		friends.POST("/request", friendHandler.Send)
		friends.POST("/accept/:user_id", friendHandler.Accept)
		friends.POST("/reject/:user_id", friendHandler.Reject)
		friends.DELETE("/:user_id", friendHandler.Remove)
	}

	notificationHandler := NewNotificationHandler(d.Notifications, d.Logger)
	notifications := r.Group("/api/notifications")
	notifications.Use(requireAuth)
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("", middleware.RequirePrivileged(), notificationHandler.Create)
		notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		notifications.PUT("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("", notificationHandler.ClearAll)
	}

	adminHandler := NewAdminHandler(d.Admin, d.Logger)
	admin := r.Group("/api/admin")
	admin.Use(requireAuth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.PUT("/users/:id/role", adminHandler.ChangeRole)
		admin.GET("/users/:id/role-history", adminHandler.RoleHistory)
	}

	return r
}

func health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
