package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campusline/metrics"
	"campusline/models"
	"campusline/websocket"
)

// PresenceService derives online state from the freshness of last_active.
// The stored flag is only trusted inside the threshold window and is
// corrected on read when it has gone stale.
type PresenceService struct {
	store     PresenceStore
	friends   FriendshipStore
	emitter   websocket.Emitter
	threshold time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewPresenceService(store PresenceStore, friends FriendshipStore, emitter websocket.Emitter, threshold time.Duration, m *metrics.Metrics, logger *zap.Logger) *PresenceService {
	return &PresenceService{
		store:     store,
		friends:   friends,
		emitter:   emitter,
		threshold: threshold,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *PresenceService) Online(ctx context.Context, userID string) error {
	prev, err := s.store.Get(ctx, userID)
	if err != nil {
		return notFound(err, "user not found")
	}

	now := s.now()
	if err := s.store.MarkOnline(ctx, userID, now); err != nil {
		return err
	}

	if !prev.EffectiveOnline(now, s.threshold) {
		s.broadcast(ctx, &models.StatusResponse{UserID: userID, IsOnline: true, LastActive: &now})
	}
	return nil
}

func (s *PresenceService) Offline(ctx context.Context, userID string) error {
	prev, err := s.store.Get(ctx, userID)
	if err != nil {
		return notFound(err, "user not found")
	}

	if err := s.store.MarkOffline(ctx, userID); err != nil {
		return err
	}

	if prev.EffectiveOnline(s.now(), s.threshold) {
		s.broadcast(ctx, &models.StatusResponse{UserID: userID, IsOnline: false, LastActive: prev.LastActive})
	}
	return nil
}

// Status returns the effective presence of userID. A stale online flag is
// flipped with a conditional update so that a heartbeat racing this read wins.
func (s *PresenceService) Status(ctx context.Context, userID string) (*models.StatusResponse, error) {
	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}

	now := s.now()
	status := &models.StatusResponse{
		UserID:     userID,
		IsOnline:   p.EffectiveOnline(now, s.threshold),
		LastActive: p.LastActive,
	}

	if p.Stale(now, s.threshold) {
		corrected, err := s.store.MarkOfflineIfStale(ctx, userID, now.Add(-s.threshold))
		if err != nil {
			s.logger.Warn("presence correction failed", zap.String("user_id", userID), zap.Error(err))
		} else if corrected {
			s.metrics.RecordPresenceCorrection()
			s.logger.Debug("stale presence corrected", zap.String("user_id", userID))
			s.broadcast(ctx, status)
		}
	}

	return status, nil
}

// Heartbeat is the websocket liveness hook; it has no caller to report to.
func (s *PresenceService) Heartbeat(ctx context.Context, userID string) {
	if err := s.Online(ctx, userID); err != nil {
		s.logger.Warn("heartbeat failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// EffectiveOnline applies the threshold to a stored flag read elsewhere.
func (s *PresenceService) EffectiveOnline(isOnline bool, lastActive *time.Time) bool {
	p := models.Presence{IsOnline: isOnline, LastActive: lastActive}
	return p.EffectiveOnline(s.now(), s.threshold)
}

func (s *PresenceService) broadcast(ctx context.Context, status *models.StatusResponse) {
	ids, err := s.friends.FriendIDs(ctx, status.UserID)
	if err != nil {
		s.logger.Warn("failed to load friends for status broadcast", zap.String("user_id", status.UserID), zap.Error(err))
		return
	}
	for _, id := range ids {
		emit(ctx, s.emitter, s.logger, id, websocket.EventUserStatus, status)
	}
}
