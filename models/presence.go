package models

import "time"

// Presence is the stored liveness state of one user.
type Presence struct {
	UserID     string
	IsOnline   bool
	LastActive *time.Time
}

// EffectiveOnline reports whether the stored flag still holds at now.
func (p *Presence) EffectiveOnline(now time.Time, threshold time.Duration) bool {
	if !p.IsOnline || p.LastActive == nil {
		return false
	}
	return now.Sub(*p.LastActive) <= threshold
}

// Stale reports whether the stored flag claims online but activity is too old.
func (p *Presence) Stale(now time.Time, threshold time.Duration) bool {
	return p.IsOnline && !p.EffectiveOnline(now, threshold)
}

type StatusResponse struct {
	UserID     string     `json:"userId"`
	IsOnline   bool       `json:"isOnline"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}
