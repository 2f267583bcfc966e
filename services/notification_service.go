package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"campusline/models"
	"campusline/utils"
	"campusline/websocket"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

type CreateNotificationInput struct {
	UserID   string
	Title    string
	Message  string
	Type     string
	Link     *string
	Metadata json.RawMessage
}

// NotificationService persists first and pushes second. A failed push never
// fails the call; the row stays available to list/poll.
type NotificationService struct {
	store   NotificationStore
	users   UserStore
	emitter websocket.Emitter
	logger  *zap.Logger
	now     func() time.Time
}

func NewNotificationService(store NotificationStore, users UserStore, emitter websocket.Emitter, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:   store,
		users:   users,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *NotificationService) Create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if in.UserID == "" {
		return nil, utils.NewValidationError("user_id is required")
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return nil, utils.NewValidationError("title and message are required")
	}
	if in.Type == "" {
		in.Type = models.NotificationGeneral
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, utils.NewValidationError("metadata must be valid JSON")
	}

	exists, err := s.users.Exists(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, utils.NewNotFoundError("user not found")
	}

	n := &models.Notification{
		ID:        utils.GenerateUUID(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		Link:      in.Link,
		Metadata:  in.Metadata,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}

	s.Publish(ctx, n)
	return n, nil
}

// Publish pushes an already persisted notification to its owner.
func (s *NotificationService) Publish(ctx context.Context, n *models.Notification) {
	emit(ctx, s.emitter, s.logger, n.UserID, websocket.EventNotificationNew, n)
}

func (s *NotificationService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListByUser(ctx, userID, limit, offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

// MarkRead is idempotent: an already read notification is returned as is.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "notification not found")
	}
	if n.UserID != userID {
		return nil, utils.NewForbiddenError("not your notification")
	}
	if n.Read {
		return n, nil
	}

	if err := s.store.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.Read = true

	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to count unread notifications", zap.String("user_id", userID), zap.Error(err))
	} else {
		emit(ctx, s.emitter, s.logger, userID, websocket.EventNotificationUpdate, map[string]interface{}{
			"id":          id,
			"read":        true,
			"unreadCount": unread,
		})
	}
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	emit(ctx, s.emitter, s.logger, userID, websocket.EventNotificationUpdate, map[string]interface{}{
		"all":         true,
		"unreadCount": 0,
	})
	return updated, nil
}

// ClearAll hard-deletes every notification of userID.
func (s *NotificationService) ClearAll(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.store.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	emit(ctx, s.emitter, s.logger, userID, websocket.EventNotificationUpdate, map[string]interface{}{
		"cleared":     true,
		"unreadCount": 0,
	})
	return deleted, nil
}
