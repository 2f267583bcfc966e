package websocket

// Server-originated events.
const (
	EventFriendRequest          = "friend_request"
	EventFriendRequestResponse  = "friend_request_response"
	EventFriendRequestCancelled = "friend_request_cancelled"
	EventNotificationNew        = "notification:new"
	EventNotificationUpdate     = "notification:update"
	EventUserStatus             = "user_status"
	EventPong                   = "pong"
)

// Client actions.
const (
	ActionPing      = "ping"
	ActionHeartbeat = "heartbeat"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type ClientMessage struct {
	Action string `json:"action"`
}
