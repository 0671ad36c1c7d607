package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"magazyn/internal/apperr"
	"magazyn/internal/model"
	"magazyn/internal/store"
	"magazyn/pkg/jwtutil"
	"magazyn/pkg/logger"
	"magazyn/pkg/password"
	"magazyn/prometheus"
)

// Session is returned after register and login
type Session struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

// AuthService registers accounts and issues bearer tokens
type AuthService struct {
	users     store.UserStore
	passwords *password.Policy
	tokens    *jwtutil.JWTUtil
}

func NewAuthService(users store.UserStore, passwords *password.Policy, tokens *jwtutil.JWTUtil) *AuthService {
	return &AuthService{users: users, passwords: passwords, tokens: tokens}
}

// Register creates an account and signs the user in
func (s *AuthService) Register(ctx context.Context, username, pass string) (*Session, error) {
	log := logger.FromStdContext(ctx)

	username, pass, err := credentials(username, pass, "user")
	if err != nil {
		return nil, err
	}

	// Hash password
	hash, err := s.passwords.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{ID: uuid.NewString(), Username: username, PasswordHash: hash, Role: "user"}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("Username already taken", zap.String("username", username))
			return nil, apperr.Conflict("username already taken")
		}
		return nil, fromStore(err, "create user", "user not found")
	}

	prometheus.RegisterCounter.Inc()
	log.Info("User registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return s.session(user)
}

// Login verifies the credentials against any accepted hash scheme. A legacy
// hash is replaced with the preferred scheme before the login succeeds.
func (s *AuthService) Login(ctx context.Context, username, pass string) (*Session, error) {
	log := logger.FromStdContext(ctx)

	username, pass, err := credentials(username, pass, "user")
	if err != nil {
		return nil, err
	}

	// Find user
	user, err := s.users.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Login for unknown user", zap.String("username", username))
		prometheus.RecordAuthError("login_failure")
		return nil, apperr.Unauthorized("invalid username or password")
	}
	if err != nil {
		return nil, fromStore(err, "find user", "user not found")
	}

	// Verify password
	if !s.passwords.Verify(pass, user.PasswordHash) {
		log.Warn("Invalid password", zap.String("user_id", user.ID))
		prometheus.RecordAuthError("login_failure")
		return nil, apperr.Unauthorized("invalid username or password")
	}

	// Upgrade legacy hash
	if s.passwords.NeedsUpgrade(user.PasswordHash) {
		hash, err := s.passwords.Hash(pass)
		if err != nil {
			return nil, fmt.Errorf("rehash password: %w", err)
		}
		if err := s.users.UpdateUserPassword(ctx, user.ID, hash); err != nil {
			return nil, fromStore(err, "upgrade password", "user not found")
		}
		user.PasswordHash = hash
		prometheus.RecordPasswordUpgrade("user")
		log.Info("Upgraded legacy password hash", zap.String("user_id", user.ID))
	}

	prometheus.LoginCounter.Inc()
	log.Info("User logged in", zap.String("user_id", user.ID))
	return s.session(user)
}

// Authenticate resolves a bearer token to a user that still exists
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	// Validate token
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		prometheus.RecordAuthError("invalid_token")
		return nil, apperr.Unauthorized("invalid or expired token")
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		prometheus.RecordAuthError("unknown_user")
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, fromStore(err, "get user", "user not found")
	}
	return user, nil
}

func (s *AuthService) session(user *model.User) (*Session, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{Token: token, User: user.Public()}, nil
}
