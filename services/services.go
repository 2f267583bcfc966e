// Package services holds the business rules behind the HTTP and websocket
// surfaces. Services never talk to gin; they return *utils.AppError for
// expected failures and plain errors for everything else.
package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"campusline/models"
	"campusline/repository"
	"campusline/utils"
	"campusline/websocket"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, excludeID, query string, limit int) ([]*models.User, error)
	ChangeRole(ctx context.Context, change *repository.RoleChange) error
	ListAuditLogs(ctx context.Context, targetID, action string) ([]*models.AuditLog, error)
}

type PresenceStore interface {
	Get(ctx context.Context, userID string) (*models.Presence, error)
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	MarkOffline(ctx context.Context, userID string) error
	MarkOfflineIfStale(ctx context.Context, userID string, cutoff time.Time) (bool, error)
}

type FriendshipStore interface {
	FindByPair(ctx context.Context, a, b string) (*models.Friendship, error)
	Create(ctx context.Context, f *models.Friendship) error
	UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error
	Reopen(ctx context.Context, id, senderID, receiverID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	ListFriends(ctx context.Context, userID string) ([]*models.FriendWithUser, error)
	ListIncoming(ctx context.Context, userID string) ([]*models.FriendWithUser, error)
	ListOutgoing(ctx context.Context, userID string) ([]*models.FriendWithUser, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

// emit pushes an event and only logs failures; delivery is always secondary
// to the state already persisted.
func emit(ctx context.Context, emitter websocket.Emitter, logger *zap.Logger, userID, event string, data interface{}) {
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, userID, event, data); err != nil {
		logger.Warn("emit failed",
			zap.String("user_id", userID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func notFound(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return utils.NewNotFoundError(message)
	}
	return err
}
