package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"campusline/cache"
	"campusline/models"
	ws "campusline/websocket"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPollInterval      = 30 * time.Second
	offlineTimeout           = 2 * time.Second
)

type Options struct {
	BaseURL string
	Token   string

	HeartbeatInterval time.Duration
	// PollInterval paces the fallback sync and reconnect attempts while the
	// websocket is down.
	PollInterval time.Duration
	CacheTTL     time.Duration

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *zap.Logger

	// OnChange receives a copy of the state after every update.
	OnChange func(Snapshot)
}

// Snapshot is the client-side view kept in sync by push and poll alike.
type Snapshot struct {
	Friends     []*models.FriendWithUser
	Incoming    []*models.FriendWithUser
	Outgoing    []*models.FriendWithUser
	Online      map[string]bool
	UnreadCount int64
	Live        bool
}

func (s Snapshot) clone() Snapshot {
	online := make(map[string]bool, len(s.Online))
	for id, v := range s.Online {
		online[id] = v
	}
	s.Online = online
	return s
}

// Session keeps one signed-in user's presence alive and mirrors the state
// the server pushes about them.
type Session struct {
	api    *API
	opts   Options
	dialer *websocket.Dialer
	cache  *cache.MemoryCache
	logger *zap.Logger

	mu     sync.Mutex
	state  Snapshot
	active bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(opts Options) *Session {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Session{
		api:    NewAPI(strings.TrimRight(opts.BaseURL, "/"), opts.Token, opts.HTTPClient),
		opts:   opts,
		dialer: dialer,
		cache:  cache.NewMemoryCache(opts.CacheTTL),
		logger: opts.Logger,
		state:  Snapshot{Online: map[string]bool{}},
	}
}

func (s *Session) API() *API {
	return s.api
}

// Start marks the user online and begins heartbeating and listening. It
// fails only when the first online call fails.
func (s *Session) Start(ctx context.Context) error {
	if err := s.api.Online(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.active = true
	s.mu.Unlock()

	s.resync(ctx)

	s.wg.Add(2)
	go s.heartbeatLoop(ctx)
	go s.eventLoop(ctx)
	return nil
}

// Stop ends every loop and sends a best-effort offline signal.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.sendOffline()
}

// SetActive pauses heartbeats while the user is away. Going inactive sends
// the offline signal; coming back sends online and resyncs.
func (s *Session) SetActive(ctx context.Context, active bool) {
	s.mu.Lock()
	changed := s.active != active
	s.active = active
	s.mu.Unlock()
	if !changed {
		return
	}

	if !active {
		s.sendOffline()
		return
	}
	if err := s.api.Online(ctx); err != nil {
		s.logger.Warn("online signal failed", zap.Error(err))
	}
	s.resync(ctx)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) sendOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()
	if err := s.api.OfflineBeacon(ctx); err == nil {
		return
	}
	if err := s.api.Offline(ctx); err != nil {
		s.logger.Debug("offline signal lost", zap.Error(err))
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.isActive() {
				continue
			}
			// a missed beat is tolerated; only the server threshold flips status
			if err := s.api.Online(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

// eventLoop listens on the websocket and falls back to polling while the
// connection is down. Both paths end in apply.
func (s *Session) eventLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		if err := s.listen(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("websocket unavailable, polling", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
		s.apply(func(st *Snapshot) { st.Live = false })
		s.resync(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Session) wsURL() string {
	base := strings.TrimRight(s.opts.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?token=" + s.opts.Token
}

func (s *Session) listen(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.apply(func(st *Snapshot) { st.Live = true })
	// events missed while disconnected are recovered by a full sync
	s.resync(ctx)

	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		s.handleEvent(ctx, msg.Event, msg.Data)
	}
}

func (s *Session) handleEvent(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case ws.EventFriendRequest, ws.EventFriendRequestResponse, ws.EventFriendRequestCancelled:
		s.cache.Clear()
		s.resync(ctx)

	case ws.EventUserStatus:
		var status models.StatusResponse
		if err := json.Unmarshal(data, &status); err != nil {
			s.logger.Warn("bad user_status payload", zap.Error(err))
			return
		}
		s.apply(func(st *Snapshot) { st.Online[status.UserID] = status.IsOnline })

	case ws.EventNotificationNew:
		s.apply(func(st *Snapshot) { st.UnreadCount++ })

	case ws.EventNotificationUpdate:
		var update struct {
			UnreadCount *int64 `json:"unreadCount"`
		}
		if err := json.Unmarshal(data, &update); err != nil || update.UnreadCount == nil {
			return
		}
		s.apply(func(st *Snapshot) { st.UnreadCount = *update.UnreadCount })
	}
}

// resync replaces the friendship lists and unread count wholesale.
func (s *Session) resync(ctx context.Context) {
	friends, err := s.api.Friends(ctx)
	if err != nil {
		s.logSyncError(ctx, err)
		return
	}
	incoming, err := s.api.IncomingRequests(ctx)
	if err != nil {
		s.logSyncError(ctx, err)
		return
	}
	outgoing, err := s.api.OutgoingRequests(ctx)
	if err != nil {
		s.logSyncError(ctx, err)
		return
	}
	unread, err := s.api.UnreadCount(ctx)
	if err != nil {
		s.logSyncError(ctx, err)
		return
	}

	s.apply(func(st *Snapshot) {
		st.Friends = friends
		st.Incoming = incoming
		st.Outgoing = outgoing
		st.UnreadCount = unread
		st.Online = make(map[string]bool, len(friends))
		for _, f := range friends {
			st.Online[f.Friend.ID] = f.IsOnline
		}
	})
}

func (s *Session) logSyncError(ctx context.Context, err error) {
	if ctx.Err() == nil {
		s.logger.Warn("sync failed", zap.Error(err))
	}
}

func (s *Session) apply(update func(st *Snapshot)) {
	s.mu.Lock()
	update(&s.state)
	snapshot := s.state.clone()
	s.mu.Unlock()

	if s.opts.OnChange != nil {
		s.opts.OnChange(snapshot)
	}
}

// RefreshStatus asks the server for one user's presence and patches the
// snapshot. The server read also clears a stale online flag and notifies
// that user's friends, so it is worth calling for users on screen.
func (s *Session) RefreshStatus(ctx context.Context, userID string) (bool, error) {
	status, err := s.api.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	s.apply(func(st *Snapshot) { st.Online[userID] = status.IsOnline })
	return status.IsOnline, nil
}

// FriendshipStatus reads through the local cache keyed by counterpart.
func (s *Session) FriendshipStatus(ctx context.Context, userID string) (models.FriendshipState, error) {
	if state, ok := s.cache.Get(ctx, userID); ok {
		return state, nil
	}
	state, err := s.api.FriendshipStatus(ctx, userID)
	if err != nil {
		return models.FriendshipState{}, err
	}
	s.cache.Set(ctx, userID, state)
	return state, nil
}

// The mutations below drop the cached entry instead of writing the expected
// state, so a server-side rejection is never masked.

func (s *Session) SendRequest(ctx context.Context, userID string) (*models.Friendship, error) {
	defer s.cache.Invalidate(ctx, userID)
	return s.api.SendRequest(ctx, userID)
}

func (s *Session) Accept(ctx context.Context, userID string) (*models.Friendship, error) {
	defer s.cache.Invalidate(ctx, userID)
	return s.api.Accept(ctx, userID)
}

func (s *Session) Reject(ctx context.Context, userID string) (*models.Friendship, error) {
	defer s.cache.Invalidate(ctx, userID)
	return s.api.Reject(ctx, userID)
}

func (s *Session) Cancel(ctx context.Context, userID string) error {
	defer s.cache.Invalidate(ctx, userID)
	return s.api.RemoveFriend(ctx, userID)
}
