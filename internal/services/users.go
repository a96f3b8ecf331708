package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/models"
	"neuronudge-backend-go/internal/store"

	"github.com/google/uuid"
)

type SignupInput struct {
	Username    string
	Password    string
	DisplayName *string
	Goal        *string
	Email       *string
}

type Session struct {
	TokenPair
	User models.User `json:"-"`
}

type UserService struct {
	Store  store.Store
	Tokens TokenService
	Log    *logging.Logger
	Now    func() time.Time
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (models.User, error) {
	username := normalizeUsername(in.Username)
	if username == "" || strings.TrimSpace(in.Password) == "" {
		return models.User{}, ErrValidation("Username and password are required")
	}
	hash, err := s.Tokens.HashPassword(in.Password)
	if err != nil {
		return models.User{}, WrapError(err, "hash password")
	}
	at := now(s.Now)
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        trimmedOrNil(in.Email),
		PasswordHash: hash,
		DisplayName:  trimmedOrNil(in.DisplayName),
		Goal:         trimmedOrNil(in.Goal),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	err = s.Store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertUser(ctx, &user)
	})
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, ErrConflict("Username already registered")
	}
	if err != nil {
		return models.User{}, asServiceError(err)
	}
	return user, nil
}

// Login checks the password and issues a token pair. Unknown users and
// wrong passwords get the same error.
func (s *UserService) Login(ctx context.Context, username, password string) (Session, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return Session{}, ErrUnauthorized("Authentication failed")
	}
	var user models.User
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrUnauthorized("Authentication failed")
	}
	if err != nil {
		return Session{}, asServiceError(err)
	}
	if !s.Tokens.VerifyPassword(password, user.PasswordHash) {
		return Session{}, ErrUnauthorized("Authentication failed")
	}
	pair, err := s.Tokens.IssuePair(user.ID, user.Username)
	if err != nil {
		return Session{}, WrapError(err, "issue tokens")
	}
	return Session{TokenPair: pair, User: user}, nil
}

// Refresh exchanges a valid refresh token for a new pair, provided the user
// still exists.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	userID, err := s.Tokens.RefreshSubject(refreshToken)
	if err != nil {
		return Session{}, ErrUnauthorized("Authentication failed")
	}
	user, err := s.Me(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	pair, err := s.Tokens.IssuePair(user.ID, user.Username)
	if err != nil {
		return Session{}, WrapError(err, "issue tokens")
	}
	return Session{TokenPair: pair, User: user}, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrUnauthorized("Authentication failed")
	}
	if err != nil {
		return models.User{}, asServiceError(err)
	}
	return user, nil
}

// UpdateProfile changes the fields that are present; blank strings are
// rejected rather than clearing the field.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, displayName, goal *string) (models.User, error) {
	if displayName != nil && strings.TrimSpace(*displayName) == "" {
		return models.User{}, ErrValidation("fullName must not be blank")
	}
	if goal != nil && strings.TrimSpace(*goal) == "" {
		return models.User{}, ErrValidation("goal must not be blank")
	}
	var user models.User
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		var err error
		user, err = tx.UpdateProfile(ctx, userID, trimmedOrNil(displayName), trimmedOrNil(goal), now(s.Now))
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, ErrNotFound("User not found")
	}
	if err != nil {
		return models.User{}, asServiceError(err)
	}
	return user, nil
}

// DeleteAccount removes the user together with their events, stats,
// nudges, reflections and prompts.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	err := s.Store.InUserTx(ctx, userID, func(tx store.Tx) error {
		return tx.DeleteUser(ctx, userID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound("User not found")
	}
	if err != nil {
		return asServiceError(err)
	}
	s.logger().Info("account deleted", "user", userID)
	return nil
}

func (s *UserService) logger() *logging.Logger {
	if s.Log == nil {
		return logging.Nop()
	}
	return s.Log
}
