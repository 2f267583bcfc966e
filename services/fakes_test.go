package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"campusline/cache"
	"campusline/metrics"
	"campusline/models"
	"campusline/repository"
	"campusline/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUsers struct {
	users       map[string]*models.User
	audit       []*models.AuditLog
	notes       *fakeNotifications
	changeCalls int
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.users[id]
	return ok, nil
}

func (f *fakeUsers) Search(_ context.Context, excludeID, query string, limit int) ([]*models.User, error) {
	var result []*models.User
	for _, u := range f.users {
		if u.ID != excludeID && (strings.Contains(u.Username, query) || strings.Contains(u.Nickname, query)) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeUsers) ChangeRole(_ context.Context, change *repository.RoleChange) error {
	f.changeCalls++
	u, ok := f.users[change.TargetID]
	if !ok || u.Role != change.OldRole {
		return repository.ErrNotFound
	}
	u.Role = change.NewRole
	f.audit = append(f.audit, &models.AuditLog{
		ID:        change.AuditID,
		ActorID:   change.ActorID,
		TargetID:  change.TargetID,
		Action:    models.AuditActionRoleChange,
		OldValue:  change.OldRole,
		NewValue:  change.NewRole,
		CreatedAt: change.At,
	})
	if change.Notification != nil {
		f.notes.rows = append(f.notes.rows, change.Notification)
	}
	return nil
}

func (f *fakeUsers) ListAuditLogs(_ context.Context, targetID, action string) ([]*models.AuditLog, error) {
	logs := []*models.AuditLog{}
	for i := len(f.audit) - 1; i >= 0; i-- {
		if f.audit[i].TargetID == targetID && f.audit[i].Action == action {
			logs = append(logs, f.audit[i])
		}
	}
	return logs, nil
}

type fakePresence struct {
	users *fakeUsers
}

func (f *fakePresence) Get(_ context.Context, userID string) (*models.Presence, error) {
	u, ok := f.users.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &models.Presence{UserID: userID, IsOnline: u.IsOnline, LastActive: u.LastActive}, nil
}

func (f *fakePresence) MarkOnline(_ context.Context, userID string, at time.Time) error {
	u, ok := f.users.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsOnline = true
	u.LastActive = &at
	return nil
}

func (f *fakePresence) MarkOffline(_ context.Context, userID string) error {
	u, ok := f.users.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsOnline = false
	return nil
}

func (f *fakePresence) MarkOfflineIfStale(_ context.Context, userID string, cutoff time.Time) (bool, error) {
	u, ok := f.users.users[userID]
	if !ok || !u.IsOnline {
		return false, nil
	}
	if u.LastActive != nil && !u.LastActive.Before(cutoff) {
		return false, nil
	}
	u.IsOnline = false
	return true, nil
}

type fakeFriendships struct {
	users *fakeUsers
	rows  map[string]*models.Friendship
}

func pairKey(a, b string) string {
	low, high := models.OrderedPair(a, b)
	return low + "|" + high
}

func (f *fakeFriendships) byID(id string) *models.Friendship {
	for _, row := range f.rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (f *fakeFriendships) FindByPair(_ context.Context, a, b string) (*models.Friendship, error) {
	row, ok := f.rows[pairKey(a, b)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeFriendships) Create(_ context.Context, row *models.Friendship) error {
	key := pairKey(row.SenderID, row.ReceiverID)
	if _, ok := f.rows[key]; ok {
		return repository.ErrDuplicate
	}
	cp := *row
	f.rows[key] = &cp
	return nil
}

func (f *fakeFriendships) UpdateStatus(_ context.Context, id, from, to string, at time.Time) error {
	row := f.byID(id)
	if row == nil || row.Status != from {
		return repository.ErrNotFound
	}
	row.Status = to
	row.UpdatedAt = at
	return nil
}

func (f *fakeFriendships) Reopen(_ context.Context, id, senderID, receiverID string, at time.Time) error {
	row := f.byID(id)
	if row == nil || row.Status != models.FriendshipRejected {
		return repository.ErrNotFound
	}
	row.SenderID = senderID
	row.ReceiverID = receiverID
	row.Status = models.FriendshipPending
	row.UpdatedAt = at
	return nil
}

func (f *fakeFriendships) Delete(_ context.Context, id string) error {
	for key, row := range f.rows {
		if row.ID == id {
			delete(f.rows, key)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeFriendships) list(match func(row *models.Friendship) (string, bool)) []*models.FriendWithUser {
	result := []*models.FriendWithUser{}
	for _, row := range f.rows {
		otherID, ok := match(row)
		if !ok {
			continue
		}
		other := f.users.users[otherID]
		result = append(result, &models.FriendWithUser{
			Friendship:       *row,
			Friend:           *other.ToResponse(),
			IsOnline:         other.IsOnline,
			FriendLastActive: other.LastActive,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Friend.Username < result[j].Friend.Username })
	return result
}

func (f *fakeFriendships) ListFriends(_ context.Context, userID string) ([]*models.FriendWithUser, error) {
	return f.list(func(row *models.Friendship) (string, bool) {
		return row.Counterpart(userID), row.Involves(userID) && row.Status == models.FriendshipAccepted
	}), nil
}

func (f *fakeFriendships) ListIncoming(_ context.Context, userID string) ([]*models.FriendWithUser, error) {
	return f.list(func(row *models.Friendship) (string, bool) {
		return row.SenderID, row.ReceiverID == userID && row.Status == models.FriendshipPending
	}), nil
}

func (f *fakeFriendships) ListOutgoing(_ context.Context, userID string) ([]*models.FriendWithUser, error) {
	return f.list(func(row *models.Friendship) (string, bool) {
		return row.ReceiverID, row.SenderID == userID && row.Status == models.FriendshipPending
	}), nil
}

func (f *fakeFriendships) FriendIDs(_ context.Context, userID string) ([]string, error) {
	var ids []string
	for _, row := range f.rows {
		if row.Involves(userID) && row.Status == models.FriendshipAccepted {
			ids = append(ids, row.Counterpart(userID))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeNotifications struct {
	rows []*models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	cp := *n
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeNotifications) FindByID(_ context.Context, id string) (*models.Notification, error) {
	for _, n := range f.rows {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeNotifications) forUser(userID string) []*models.Notification {
	var result []*models.Notification
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			result = append(result, f.rows[i])
		}
	}
	return result
}

func (f *fakeNotifications) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	rows := f.forUser(userID)
	if offset >= len(rows) {
		return []*models.Notification{}, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeNotifications) UnreadCount(_ context.Context, userID string) (int64, error) {
	var count int64
	for _, n := range f.forUser(userID) {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, id string) error {
	for _, n := range f.rows {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var updated int64
	for _, n := range f.forUser(userID) {
		if !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

func (f *fakeNotifications) DeleteAll(_ context.Context, userID string) (int64, error) {
	kept := f.rows[:0]
	var deleted int64
	for _, n := range f.rows {
		if n.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	f.rows = kept
	return deleted, nil
}

type emitted struct {
	UserID string
	Event  string
	Data   interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, userID, event string, data interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, emitted{UserID: userID, Event: event, Data: data})
	return nil
}

func (e *recordingEmitter) For(userID, event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var result []emitted
	for _, ev := range e.events {
		if ev.UserID == userID && ev.Event == event {
			result = append(result, ev)
		}
	}
	return result
}

func (e *recordingEmitter) Reset() {
	e.mu.Lock()
	e.events = nil
	e.mu.Unlock()
}

// world wires every service against in-memory stores sharing one clock.
type world struct {
	clock       *fakeClock
	users       *fakeUsers
	presence    *fakePresence
	friendships *fakeFriendships
	notes       *fakeNotifications
	emitter     *recordingEmitter
	cache       *cache.MemoryCache
	revoker     *session.MemoryRevoker
	metrics     *metrics.Metrics

	presenceSvc     *PresenceService
	friendSvc       *FriendshipService
	notificationSvc *NotificationService
	adminSvc        *AdminService
}

const threshold = 2 * time.Minute

func newWorld(t *testing.T) *world {
	t.Helper()
	logger := zap.NewNop()

	w := &world{
		clock:   &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		notes:   &fakeNotifications{},
		emitter: &recordingEmitter{},
		revoker: session.NewMemoryRevoker(time.Hour),
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	w.users = &fakeUsers{users: map[string]*models.User{}, notes: w.notes}
	w.presence = &fakePresence{users: w.users}
	w.friendships = &fakeFriendships{users: w.users, rows: map[string]*models.Friendship{}}
	w.cache = cache.NewMemoryCacheWithClock(cache.DefaultTTL, w.clock.Now)

	w.presenceSvc = NewPresenceService(w.presence, w.friendships, w.emitter, threshold, w.metrics, logger)
	w.presenceSvc.now = w.clock.Now
	w.notificationSvc = NewNotificationService(w.notes, w.users, w.emitter, logger)
	w.notificationSvc.now = w.clock.Now
	w.friendSvc = NewFriendshipService(w.friendships, w.users, w.cache, w.presenceSvc, w.notificationSvc, w.emitter, w.metrics, logger)
	w.friendSvc.now = w.clock.Now
	w.adminSvc = NewAdminService(w.users, w.notificationSvc, w.revoker, logger)
	w.adminSvc.now = w.clock.Now
	return w
}

func (w *world) addUser(id, role string) *models.User {
	u := &models.User{
		ID:        id,
		Username:  id,
		Nickname:  strings.ToUpper(id[:1]) + id[1:],
		Role:      role,
		CreatedAt: w.clock.Now(),
		UpdatedAt: w.clock.Now(),
	}
	w.users.users[id] = u
	return u
}

func (w *world) befriend(a, b string) {
	now := w.clock.Now()
	w.friendships.rows[pairKey(a, b)] = &models.Friendship{
		ID:         "f-" + a + "-" + b,
		SenderID:   a,
		ReceiverID: b,
		Status:     models.FriendshipAccepted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
