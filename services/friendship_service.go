package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusline/cache"
	"campusline/metrics"
	"campusline/models"
	"campusline/repository"
	"campusline/utils"
	"campusline/websocket"
)

// FriendshipService keeps one row per unordered pair. Reads of a pair's state
// go through the cache; every mutation invalidates both directions of the
// pair before returning.
type FriendshipService struct {
	store         FriendshipStore
	users         UserStore
	cache         cache.FriendshipCache
	presence      *PresenceService
	notifications *NotificationService
	emitter       websocket.Emitter
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time

	// epoch counts local invalidations. A read that overlaps one is returned
	// but not cached. Mutations on other instances are bounded by the TTL.
	epochMu sync.RWMutex
	epoch   uint64
}

func NewFriendshipService(
	store FriendshipStore,
	users UserStore,
	stateCache cache.FriendshipCache,
	presence *PresenceService,
	notifications *NotificationService,
	emitter websocket.Emitter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *FriendshipService {
	return &FriendshipService{
		store:         store,
		users:         users,
		cache:         stateCache,
		presence:      presence,
		notifications: notifications,
		emitter:       emitter,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// FriendRequestEvent is pushed to the receiver of a new request.
type FriendRequestEvent struct {
	Friendship *models.Friendship   `json:"friendship"`
	Sender     *models.UserResponse `json:"sender,omitempty"`
}

// FriendResponseEvent is pushed to the sender when the receiver answers.
type FriendResponseEvent struct {
	Friendship *models.Friendship `json:"friendship"`
	Status     string             `json:"status"`
}

// FriendCancelledEvent is pushed to the counterpart of a removed row.
type FriendCancelledEvent struct {
	FriendshipID string `json:"friendshipId"`
	UserID       string `json:"userId"`
	Status       string `json:"status"`
}

// Send creates a request from senderID to receiverID. A pending request in
// the opposite direction is accepted instead, and a rejected row is reused.
func (s *FriendshipService) Send(ctx context.Context, senderID, receiverID string) (*models.Friendship, error) {
	if receiverID == "" {
		return nil, utils.NewValidationError("user_id is required")
	}
	if senderID == receiverID {
		return nil, utils.NewValidationError("cannot add yourself as friend")
	}

	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, utils.NewNotFoundError("user not found")
	}

	defer s.invalidate(ctx, senderID, receiverID)

	existing, err := s.store.FindByPair(ctx, senderID, receiverID)
	switch {
	case err == nil:
		return s.resolveExisting(ctx, existing, senderID, receiverID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	now := s.now()
	f := &models.Friendship{
		ID:         utils.GenerateUUID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendshipPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.NewConflictError("friend request already exists")
		}
		return nil, err
	}

	s.announceRequest(ctx, f)
	return f, nil
}

func (s *FriendshipService) resolveExisting(ctx context.Context, f *models.Friendship, senderID, receiverID string) (*models.Friendship, error) {
	switch f.Status {
	case models.FriendshipAccepted:
		return nil, utils.NewConflictError("already friends")
	case models.FriendshipPending:
		if f.SenderID == senderID {
			return nil, utils.NewConflictError("friend request already sent")
		}
		return s.respond(ctx, f, models.FriendshipAccepted)
	}

	now := s.now()
	if err := s.store.Reopen(ctx, f.ID, senderID, receiverID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, utils.NewConflictError("friendship changed, try again")
		}
		return nil, err
	}
	f.SenderID = senderID
	f.ReceiverID = receiverID
	f.Status = models.FriendshipPending
	f.UpdatedAt = now

	s.announceRequest(ctx, f)
	return f, nil
}

func (s *FriendshipService) Accept(ctx context.Context, receiverID, senderID string) (*models.Friendship, error) {
	return s.answer(ctx, receiverID, senderID, models.FriendshipAccepted)
}

func (s *FriendshipService) Reject(ctx context.Context, receiverID, senderID string) (*models.Friendship, error) {
	return s.answer(ctx, receiverID, senderID, models.FriendshipRejected)
}

func (s *FriendshipService) answer(ctx context.Context, receiverID, senderID, status string) (*models.Friendship, error) {
	if receiverID == senderID {
		return nil, utils.NewValidationError("invalid user")
	}
	defer s.invalidate(ctx, receiverID, senderID)

	f, err := s.store.FindByPair(ctx, receiverID, senderID)
	if err != nil {
		return nil, notFound(err, "friend request not found")
	}
	if f.Status != models.FriendshipPending {
		return nil, utils.NewNotFoundError("friend request not found")
	}
	if f.ReceiverID != receiverID {
		return nil, utils.NewForbiddenError("only the receiver can respond to a friend request")
	}
	return s.respond(ctx, f, status)
}

func (s *FriendshipService) respond(ctx context.Context, f *models.Friendship, status string) (*models.Friendship, error) {
	now := s.now()
	if err := s.store.UpdateStatus(ctx, f.ID, models.FriendshipPending, status, now); err != nil {
		return nil, notFound(err, "friend request not found")
	}
	f.Status = status
	f.UpdatedAt = now

	if status == models.FriendshipAccepted {
		receiver := s.displayName(ctx, f.ReceiverID)
		s.notify(ctx, f.SenderID, models.NotificationFriendAccepted,
			"Friend request accepted",
			fmt.Sprintf("%s accepted your friend request", receiver),
			f,
		)
	}

	emit(ctx, s.emitter, s.logger, f.SenderID, websocket.EventFriendRequestResponse, &FriendResponseEvent{
		Friendship: f,
		Status:     status,
	})
	return f, nil
}

// Remove deletes the pair's row whatever its state: the sender cancelling a
// pending request, the receiver dismissing it, or either side unfriending.
func (s *FriendshipService) Remove(ctx context.Context, userID, counterpartID string) error {
	if userID == counterpartID {
		return utils.NewValidationError("invalid user")
	}
	defer s.invalidate(ctx, userID, counterpartID)

	f, err := s.store.FindByPair(ctx, userID, counterpartID)
	if err != nil {
		return notFound(err, "friendship not found")
	}
	if err := s.store.Delete(ctx, f.ID); err != nil {
		return notFound(err, "friendship not found")
	}

	emit(ctx, s.emitter, s.logger, counterpartID, websocket.EventFriendRequestCancelled, &FriendCancelledEvent{
		FriendshipID: f.ID,
		UserID:       userID,
		Status:       f.Status,
	})
	return nil
}

func (s *FriendshipService) ListFriends(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return s.annotate(s.store.ListFriends(ctx, userID))
}

func (s *FriendshipService) ListIncoming(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return s.annotate(s.store.ListIncoming(ctx, userID))
}

func (s *FriendshipService) ListOutgoing(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return s.annotate(s.store.ListOutgoing(ctx, userID))
}

func (s *FriendshipService) annotate(friends []*models.FriendWithUser, err error) ([]*models.FriendWithUser, error) {
	if err != nil {
		return nil, err
	}
	for _, f := range friends {
		f.IsOnline = s.presence.EffectiveOnline(f.IsOnline, f.FriendLastActive)
	}
	return friends, nil
}

// Status returns the pair's state as seen by viewerID.
func (s *FriendshipService) Status(ctx context.Context, viewerID, counterpartID string) (models.FriendshipState, error) {
	if viewerID == counterpartID {
		return models.FriendshipState{}, utils.NewValidationError("invalid user")
	}

	key := cache.Key(viewerID, counterpartID)
	if state, ok := s.cache.Get(ctx, key); ok {
		s.metrics.RecordCacheLookup(true)
		return state, nil
	}
	s.metrics.RecordCacheLookup(false)

	epoch := s.currentEpoch()
	state := models.FriendshipState{Status: models.FriendshipNone, CachedAt: s.now()}
	f, err := s.store.FindByPair(ctx, viewerID, counterpartID)
	switch {
	case err == nil:
		state.FriendshipID = f.ID
		state.Status = f.Status
		state.IsIncoming = f.ReceiverID == viewerID
	case !errors.Is(err, repository.ErrNotFound):
		return models.FriendshipState{}, err
	}

	s.epochMu.RLock()
	if s.epoch == epoch {
		s.cache.Set(ctx, key, state)
	}
	s.epochMu.RUnlock()
	return state, nil
}

func (s *FriendshipService) currentEpoch() uint64 {
	s.epochMu.RLock()
	defer s.epochMu.RUnlock()
	return s.epoch
}

func (s *FriendshipService) invalidate(ctx context.Context, a, b string) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	s.epoch++
	s.cache.Invalidate(ctx, cache.PairKeys(a, b)...)
}

func (s *FriendshipService) announceRequest(ctx context.Context, f *models.Friendship) {
	event := &FriendRequestEvent{Friendship: f}
	sender, err := s.users.FindByID(ctx, f.SenderID)
	if err != nil {
		s.logger.Warn("failed to load request sender", zap.String("user_id", f.SenderID), zap.Error(err))
	} else {
		event.Sender = sender.ToResponse()
	}

	name := "Someone"
	if sender != nil {
		name = sender.Nickname
		if name == "" {
			name = sender.Username
		}
	}
	s.notify(ctx, f.ReceiverID, models.NotificationFriendRequest,
		"New friend request",
		fmt.Sprintf("%s sent you a friend request", name),
		f,
	)

	emit(ctx, s.emitter, s.logger, f.ReceiverID, websocket.EventFriendRequest, event)
}

// notify records a friendship notification. The friendship row is already
// committed at this point, so a failure is logged rather than returned.
func (s *FriendshipService) notify(ctx context.Context, userID, kind, title, message string, f *models.Friendship) {
	link := "/friends"
	metadata, _ := json.Marshal(map[string]string{
		"friendshipId": f.ID,
		"senderId":     f.SenderID,
		"receiverId":   f.ReceiverID,
	})
	_, err := s.notifications.Create(ctx, CreateNotificationInput{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Type:     kind,
		Link:     &link,
		Metadata: metadata,
	})
	if err != nil {
		s.logger.Error("failed to create friendship notification",
			zap.String("user_id", userID),
			zap.String("friendship_id", f.ID),
			zap.Error(err),
		)
	}
}

func (s *FriendshipService) displayName(ctx context.Context, userID string) string {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "Someone"
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
