package repository

import (
	"context"
	"database/sql"
	"time"

	"campusline/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, username, nickname, avatar, password, role, is_online, last_active, created_at, updated_at"

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var lastActive sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Nickname, &u.Avatar, &u.Password, &u.Role,
		&u.IsOnline, &lastActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if lastActive.Valid {
		t := lastActive.Time
		u.LastActive = &t
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, nickname, password, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Username, u.Nickname, u.Password, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	return translate(err)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	return u, translate(err)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	return u, translate(err)
}

func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	return exists, translate(err)
}

func (r *UserRepository) Search(ctx context.Context, excludeID, query string, limit int) ([]*models.User, error) {
	pattern := "%" + escapeLikePattern(query) + "%"
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id != ? AND (username LIKE ? OR nickname LIKE ?) ORDER BY nickname, username LIMIT ?",
		excludeID, pattern, pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RoleChange is applied atomically by ChangeRole.
type RoleChange struct {
	ActorID      string
	TargetID     string
	OldRole      string
	NewRole      string
	At           time.Time
	AuditID      string
	Notification *models.Notification
}

// ChangeRole updates the role, writes the audit row and the notification in
// one transaction. Nothing is written when any step fails.
func (r *UserRepository) ChangeRole(ctx context.Context, change *RoleChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE users SET role = ?, updated_at = ? WHERE id = ? AND role = ?",
		change.NewRole, change.At, change.TargetID, change.OldRole,
	)
	if err != nil {
		tx.Rollback()
		return translate(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if n == 0 {
		// role changed concurrently or user removed
		tx.Rollback()
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO audit_logs (id, actor_id, target_id, action, old_value, new_value, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		change.AuditID, change.ActorID, change.TargetID, models.AuditActionRoleChange, change.OldRole, change.NewRole, change.At,
	)
	if err != nil {
		tx.Rollback()
		return translate(err)
	}

	if change.Notification != nil {
		if err := insertNotification(ctx, tx, change.Notification); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (r *UserRepository) ListAuditLogs(ctx context.Context, targetID, action string) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, actor_id, target_id, action, old_value, new_value, created_at FROM audit_logs WHERE target_id = ? AND action = ? ORDER BY created_at DESC",
		targetID, action,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorID, &l.TargetID, &l.Action, &l.OldValue, &l.NewValue, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
