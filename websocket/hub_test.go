package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campusline/session"
	"campusline/utils"
)

type heartbeatRecorder struct {
	mu    sync.Mutex
	users []string
}

func (r *heartbeatRecorder) record(_ context.Context, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func (r *heartbeatRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type testServer struct {
	hub     *Hub
	tokens  *utils.TokenManager
	revoker *session.MemoryRevoker
	beats   *heartbeatRecorder
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(logger, nil)
	go hub.Run(ctx)

	ts := &testServer{
		hub:     hub,
		tokens:  utils.NewTokenManager("secret", time.Hour),
		revoker: session.NewMemoryRevoker(time.Hour),
		beats:   &heartbeatRecorder{},
	}

	h := NewHandler(hub, ts.tokens, ts.revoker, ts.beats.record, nil, logger)
	r := gin.New()
	r.GET("/ws", h.ServeWS)
	ts.srv = httptest.NewServer(r)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func (ts *testServer) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := ts.tokens.GenerateToken(userID, "STUDENT")
	require.NoError(t, err)
	conn, _, err := ts.dial(t, token)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestServeWS_RejectsMissingAndInvalidTokens(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := ts.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = ts.dial(t, "not-a-jwt")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_RejectsRevokedSession(t *testing.T) {
	ts := newTestServer(t)
	token, err := ts.tokens.GenerateToken("u1", "STUDENT")
	require.NoError(t, err)

	require.NoError(t, ts.revoker.Revoke(context.Background(), "u1", time.Now().Add(time.Minute)))

	_, resp, err := ts.dial(t, token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmit_FansOutToEveryTabOfUser(t *testing.T) {
	ts := newTestServer(t)
	tab1 := ts.connect(t, "alice")
	tab2 := ts.connect(t, "alice")
	other := ts.connect(t, "bob")

	require.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ts.hub.Emit(context.Background(), "alice", EventFriendRequest, map[string]string{"from": "bob"}))

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		msg := readMessage(t, conn)
		assert.Equal(t, EventFriendRequest, msg.Event)
		assert.Equal(t, map[string]interface{}{"from": "bob"}, msg.Data)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's events")
}

func TestConnect_CountsAsHeartbeatAndHeartbeatActionPongs(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.connect(t, "alice")

	require.Eventually(t, func() bool { return ts.beats.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionHeartbeat}))
	msg := readMessage(t, conn)
	assert.Equal(t, EventPong, msg.Event)
	assert.Equal(t, 2, ts.beats.count())

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionPing}))
	msg = readMessage(t, conn)
	assert.Equal(t, EventPong, msg.Event)
	assert.Equal(t, 2, ts.beats.count())
}

func TestDisconnect_LeavesRoom(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.connect(t, "alice")

	require.Eventually(t, func() bool { return ts.hub.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return !ts.hub.IsConnected("alice") }, 2*time.Second, 10*time.Millisecond)
}

func newBareHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(zap.NewNop(), nil)
	go hub.Run(ctx)
	return hub
}

func TestSendToUser_DropsSlowClient(t *testing.T) {
	hub := newBareHub(t)
	slow := &Client{ID: "c1", UserID: "alice", Send: make(chan []byte)}
	require.True(t, hub.Register(slow))
	require.Eventually(t, func() bool { return hub.IsConnected("alice") }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, hub.SendToUser("alice", []byte("{}")))
	assert.Eventually(t, func() bool { return !hub.IsConnected("alice") }, time.Second, 5*time.Millisecond)
}

type memoryBroker struct {
	mu      sync.Mutex
	deliver func(userID string, payload []byte)
	fail    error
}

func (b *memoryBroker) Publish(_ context.Context, userID string, payload []byte) error {
	if b.fail != nil {
		return b.fail
	}
	b.mu.Lock()
	deliver := b.deliver
	b.mu.Unlock()
	if deliver != nil {
		deliver(userID, payload)
	}
	return nil
}

func (b *memoryBroker) Subscribe(_ context.Context, deliver func(userID string, payload []byte)) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	return nil
}

func (b *memoryBroker) Close() error { return nil }

func TestRelay_DeliversThroughBroker(t *testing.T) {
	hub := newBareHub(t)
	client := &Client{ID: "c1", UserID: "alice", Send: make(chan []byte, 1)}
	require.True(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.IsConnected("alice") }, time.Second, 5*time.Millisecond)

	broker := &memoryBroker{}
	relay := NewRelay(hub, broker, zap.NewNop(), nil)
	require.NoError(t, relay.Start(context.Background()))

	require.NoError(t, relay.Emit(context.Background(), "alice", EventUserStatus, map[string]interface{}{"isOnline": true}))

	select {
	case payload := <-client.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, EventUserStatus, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("relay did not deliver")
	}
}

func TestRelay_PublishErrorIsReturned(t *testing.T) {
	hub := newBareHub(t)
	relay := NewRelay(hub, &memoryBroker{fail: errors.New("broker down")}, zap.NewNop(), nil)

	err := relay.Emit(context.Background(), "alice", EventUserStatus, nil)
	assert.Error(t, err)
}
