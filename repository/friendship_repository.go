package repository

import (
	"context"
	"database/sql"
	"time"

	"campusline/models"
)

type FriendshipRepository struct {
	db *sql.DB
}

func NewFriendshipRepository(db *sql.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

const friendshipColumns = "f.id, f.sender_id, f.receiver_id, f.status, f.created_at, f.updated_at"

func scanFriendship(row interface{ Scan(...interface{}) error }) (*models.Friendship, error) {
	var f models.Friendship
	if err := row.Scan(&f.ID, &f.SenderID, &f.ReceiverID, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindByPair returns the single row of the unordered pair (a, b).
func (r *FriendshipRepository) FindByPair(ctx context.Context, a, b string) (*models.Friendship, error) {
	low, high := models.OrderedPair(a, b)
	f, err := scanFriendship(r.db.QueryRowContext(ctx,
		"SELECT "+friendshipColumns+" FROM friendships f WHERE f.user_low = ? AND f.user_high = ?",
		low, high,
	))
	return f, translate(err)
}

// Create inserts a new row. A concurrent insert for the same pair fails with
// ErrDuplicate through the uk_pair key.
func (r *FriendshipRepository) Create(ctx context.Context, f *models.Friendship) error {
	low, high := models.OrderedPair(f.SenderID, f.ReceiverID)
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO friendships (id, sender_id, receiver_id, user_low, user_high, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.SenderID, f.ReceiverID, low, high, f.Status, f.CreatedAt, f.UpdatedAt,
	)
	return translate(err)
}

// UpdateStatus moves a row from one status to another. It returns ErrNotFound
// when the row is no longer in the expected status.
func (r *FriendshipRepository) UpdateStatus(ctx context.Context, id, from, to string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE friendships SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, at, id, from,
	)
	if err != nil {
		return translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reopen turns a rejected row back into a pending request with a new direction.
func (r *FriendshipRepository) Reopen(ctx context.Context, id, senderID, receiverID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE friendships SET sender_id = ?, receiver_id = ?, status = 'PENDING', updated_at = ? WHERE id = ? AND status = 'REJECTED'",
		senderID, receiverID, at, id,
	)
	if err != nil {
		return translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FriendshipRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM friendships WHERE id = ?", id)
	if err != nil {
		return translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFriends returns accepted friendships of userID joined with the other user.
func (r *FriendshipRepository) ListFriends(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return r.listWithUser(ctx, `
		SELECT `+friendshipColumns+`,
			   u.id, u.username, u.nickname, u.avatar, u.role, u.created_at, u.is_online, u.last_active
		FROM friendships f
		JOIN users u ON u.id = IF(f.sender_id = ?, f.receiver_id, f.sender_id)
		WHERE (f.sender_id = ? OR f.receiver_id = ?) AND f.status = 'ACCEPTED'
		ORDER BY u.nickname
	`, userID, userID, userID)
}

// ListIncoming returns pending requests addressed to userID.
func (r *FriendshipRepository) ListIncoming(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return r.listWithUser(ctx, `
		SELECT `+friendshipColumns+`,
			   u.id, u.username, u.nickname, u.avatar, u.role, u.created_at, u.is_online, u.last_active
		FROM friendships f
		JOIN users u ON u.id = f.sender_id
		WHERE f.receiver_id = ? AND f.status = 'PENDING'
		ORDER BY f.created_at DESC
	`, userID)
}

// ListOutgoing returns pending requests sent by userID.
func (r *FriendshipRepository) ListOutgoing(ctx context.Context, userID string) ([]*models.FriendWithUser, error) {
	return r.listWithUser(ctx, `
		SELECT `+friendshipColumns+`,
			   u.id, u.username, u.nickname, u.avatar, u.role, u.created_at, u.is_online, u.last_active
		FROM friendships f
		JOIN users u ON u.id = f.receiver_id
		WHERE f.sender_id = ? AND f.status = 'PENDING'
		ORDER BY f.created_at DESC
	`, userID)
}

func (r *FriendshipRepository) listWithUser(ctx context.Context, query string, args ...interface{}) ([]*models.FriendWithUser, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []*models.FriendWithUser{}
	for rows.Next() {
		var f models.FriendWithUser
		var user models.User
		var lastActive sql.NullTime
		if err := rows.Scan(
			&f.ID, &f.SenderID, &f.ReceiverID, &f.Status, &f.CreatedAt, &f.UpdatedAt,
			&user.ID, &user.Username, &user.Nickname, &user.Avatar, &user.Role, &user.CreatedAt,
			&user.IsOnline, &lastActive,
		); err != nil {
			return nil, err
		}
		if lastActive.Valid {
			t := lastActive.Time
			user.LastActive = &t
		}
		f.Friend = *user.ToResponse()
		f.IsOnline = user.IsOnline
		f.FriendLastActive = user.LastActive
		friends = append(friends, &f)
	}
	return friends, rows.Err()
}

// FriendIDs returns the ids of every accepted friend of userID.
func (r *FriendshipRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT IF(sender_id = ?, receiver_id, sender_id) FROM friendships WHERE (sender_id = ? OR receiver_id = ?) AND status = 'ACCEPTED'",
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
