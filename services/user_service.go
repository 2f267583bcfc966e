package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"campusline/models"
	"campusline/repository"
	"campusline/utils"
)

const maxSearchResults = 20

type AuthResult struct {
	Token string               `json:"token"`
	User  *models.UserResponse `json:"user"`
}

// UserService covers registration, login and profile reads.
type UserService struct {
	users  UserStore
	tokens *utils.TokenManager
	logger *zap.Logger
	now    func() time.Time
}

func NewUserService(users UserStore, tokens *utils.TokenManager, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

func (s *UserService) Register(ctx context.Context, username, password, nickname string) (*AuthResult, error) {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, utils.NewConflictError("username already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	if nickname == "" {
		nickname = username
	}
	now := s.now()
	u := &models.User{
		ID:        utils.GenerateUUID(),
		Username:  username,
		Nickname:  nickname,
		Password:  string(hashed),
		Role:      models.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.NewConflictError("username already exists")
		}
		return nil, err
	}

	return s.issue(u)
}

func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewUnauthorizedError("invalid username or password")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, utils.NewUnauthorizedError("invalid username or password")
	}

	return s.issue(u)
}

// Refresh issues a new token carrying the user's current role.
func (s *UserService) Refresh(ctx context.Context, userID string) (*AuthResult, error) {
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewUnauthorizedError("user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *UserService) Profile(ctx context.Context, userID string) (*models.UserResponse, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	return u.ToResponse(), nil
}

func (s *UserService) Search(ctx context.Context, userID, query string) ([]*models.UserResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, utils.NewValidationError("search query is required")
	}

	users, err := s.users.Search(ctx, userID, query, maxSearchResults)
	if err != nil {
		return nil, err
	}

	result := make([]*models.UserResponse, 0, len(users))
	for _, u := range users {
		result = append(result, u.ToResponse())
	}
	return result, nil
}

func (s *UserService) issue(u *models.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: u.ToResponse()}, nil
}
