package repository

import (
	"context"
	"database/sql"
	"time"

	"campusline/models"
)

type PresenceRepository struct {
	db *sql.DB
}

func NewPresenceRepository(db *sql.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Get(ctx context.Context, userID string) (*models.Presence, error) {
	var p models.Presence
	var lastActive sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT id, is_online, last_active FROM users WHERE id = ?",
		userID,
	).Scan(&p.UserID, &p.IsOnline, &lastActive)
	if err != nil {
		return nil, translate(err)
	}
	if lastActive.Valid {
		t := lastActive.Time
		p.LastActive = &t
	}
	return &p, nil
}

func (r *PresenceRepository) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_online = 1, last_active = ? WHERE id = ?",
		at, userID,
	)
	return translate(err)
}

func (r *PresenceRepository) MarkOffline(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_online = 0 WHERE id = ?",
		userID,
	)
	return translate(err)
}

// MarkOfflineIfStale clears the online flag only while last_active is still
// older than cutoff, so a heartbeat landing in between is not overwritten.
func (r *PresenceRepository) MarkOfflineIfStale(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET is_online = 0 WHERE id = ? AND is_online = 1 AND (last_active IS NULL OR last_active < ?)",
		userID, cutoff,
	)
	if err != nil {
		return false, translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
