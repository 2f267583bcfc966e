package models

import (
	"encoding/json"
	"time"
)

const (
	NotificationFriendRequest  = "FRIEND_REQUEST"
	NotificationFriendAccepted = "FRIEND_ACCEPTED"
	NotificationRoleChanged    = "ROLE_CHANGED"
	NotificationGeneral        = "GENERAL"
)

type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Read      bool            `json:"read"`
	Link      *string         `json:"link,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func ValidNotificationType(kind string) bool {
	switch kind {
	case NotificationFriendRequest, NotificationFriendAccepted, NotificationRoleChanged, NotificationGeneral:
		return true
	}
	return false
}
