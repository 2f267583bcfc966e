package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campusline/models"
	"campusline/repository"
	"campusline/session"
	"campusline/utils"
)

type AdminService struct {
	users         UserStore
	notifications *NotificationService
	revoker       session.Revoker
	logger        *zap.Logger
	now           func() time.Time
}

func NewAdminService(users UserStore, notifications *NotificationService, revoker session.Revoker, logger *zap.Logger) *AdminService {
	return &AdminService{
		users:         users,
		notifications: notifications,
		revoker:       revoker,
		logger:        logger,
		now:           time.Now,
	}
}

// ChangeRole sets targetID's role. The role update, the audit row and the
// notification commit together; revoking the target's sessions and pushing
// the notification happen after commit and may fail without undoing it.
func (s *AdminService) ChangeRole(ctx context.Context, actorID, actorRole, targetID, newRole string) (*models.UserResponse, error) {
	if actorRole != models.RoleAdmin {
		return nil, utils.NewForbiddenError("admin role required")
	}
	if !models.ValidRole(newRole) {
		return nil, utils.NewValidationError("invalid role")
	}
	if actorID == targetID {
		return nil, utils.NewValidationError("cannot change your own role")
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if target.Role == newRole {
		return target.ToResponse(), nil
	}

	now := s.now()
	metadata, _ := json.Marshal(map[string]string{
		"oldRole": target.Role,
		"newRole": newRole,
		"actorId": actorID,
	})
	notification := &models.Notification{
		ID:        utils.GenerateUUID(),
		UserID:    targetID,
		Title:     "Role updated",
		Message:   fmt.Sprintf("Your role was changed from %s to %s. Please sign in again.", target.Role, newRole),
		Type:      models.NotificationRoleChanged,
		Metadata:  metadata,
		CreatedAt: now,
	}

	err = s.users.ChangeRole(ctx, &repository.RoleChange{
		ActorID:      actorID,
		TargetID:     targetID,
		OldRole:      target.Role,
		NewRole:      newRole,
		At:           now,
		AuditID:      utils.GenerateUUID(),
		Notification: notification,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewConflictError("user changed concurrently, try again")
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("role changed",
		zap.String("actor_id", actorID),
		zap.String("target_id", targetID),
		zap.String("old_role", target.Role),
		zap.String("new_role", newRole),
	)

	if err := s.revoker.Revoke(ctx, targetID, now); err != nil {
		s.logger.Warn("failed to revoke sessions after role change", zap.String("user_id", targetID), zap.Error(err))
	}
	s.notifications.Publish(ctx, notification)

	target.Role = newRole
	target.UpdatedAt = now
	return target.ToResponse(), nil
}

// RoleHistory returns targetID's role changes, newest first.
func (s *AdminService) RoleHistory(ctx context.Context, actorRole, targetID string) ([]*models.AuditLog, error) {
	if actorRole != models.RoleAdmin {
		return nil, utils.NewForbiddenError("admin role required")
	}
	exists, err := s.users.Exists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, utils.NewNotFoundError("user not found")
	}
	return s.users.ListAuditLogs(ctx, targetID, models.AuditActionRoleChange)
}
