package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campusline/models"
	"campusline/utils"
)

func newUserService(t *testing.T) (*UserService, *world, *utils.TokenManager) {
	t.Helper()
	w := newWorld(t)
	tokens := utils.NewTokenManager("test-secret", time.Hour)
	return NewUserService(w.users, tokens, zap.NewNop()), w, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, tokens := newUserService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "secret123", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", registered.User.Nickname)
	assert.Equal(t, models.RoleStudent, registered.User.Role)

	claims, err := tokens.ParseToken(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)

	_, err = svc.Register(ctx, "alice", "other-pass", "Alice")
	assert.True(t, utils.IsKind(err, utils.KindConflict))

	loggedIn, err := svc.Login(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))

	_, err = svc.Login(ctx, "nobody", "secret123")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))
}

func TestRefreshCarriesCurrentRole(t *testing.T) {
	svc, w, tokens := newUserService(t)
	w.addUser("alice", models.RoleInstructor)

	result, err := svc.Refresh(context.Background(), "alice")
	require.NoError(t, err)
	claims, err := tokens.ParseToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, claims.Role)

	_, err = svc.Refresh(context.Background(), "ghost")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))
}

func TestProfileAndSearch(t *testing.T) {
	svc, w, _ := newUserService(t)
	w.addUser("alice", models.RoleStudent)
	w.addUser("alfred", models.RoleStudent)
	w.addUser("bob", models.RoleStudent)
	ctx := context.Background()

	profile, err := svc.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	_, err = svc.Profile(ctx, "ghost")
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	found, err := svc.Search(ctx, "alice", "al")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alfred", found[0].Username)

	_, err = svc.Search(ctx, "alice", "  ")
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}
