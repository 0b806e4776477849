// Package auth issues bearer tokens and manages admin-provisioned accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rohits-web03/vectorvault/internal/models"
	"github.com/rohits-web03/vectorvault/internal/repositories"
)

const MinPasswordLength = 8

var (
	ErrUnauthenticated    = errors.New("could not validate credentials")
	ErrTokenExpired       = fmt.Errorf("%w: token has expired", ErrUnauthenticated)
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrForbidden          = errors.New("not enough privileges")
	ErrSelfAction         = errors.New("this action cannot be performed on your own account")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type NewUser struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
	IsAdmin  bool    `json:"is_admin"`
}

// UserUpdate carries optional changes. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
}

type Service struct {
	users    repositories.UserRepository
	tokens   *TokenIssuer
	logger   *slog.Logger
	hashCost int
}

func NewService(users repositories.UserRepository, tokens *TokenIssuer, logger *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger, hashCost: bcrypt.DefaultCost}
}

func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Login checks the password and issues a token for an active user.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(user)
}

// LoginVerified signs in an existing user whose email was verified by an
// external identity provider. Unknown emails are refused.
func (s *Service) LoginVerified(ctx context.Context, email string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return s.startSession(user)
}

func (s *Service) startSession(user *models.User) (*Session, error) {
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed in", "user_id", user.ID, "email", user.Email)
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// Authenticate resolves a bearer token to its active user. Admin status
// is read from the store, never from the token.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireAdmin returns ErrForbidden unless user is an active admin.
func RequireAdmin(user *models.User) error {
	if user == nil || !user.ActiveAdmin() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:    email,
		FullName: cleanName(in.FullName),
		Password: hash,
		IsActive: true,
		IsAdmin:  in.IsAdmin,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "email", user.Email, "is_admin", user.IsAdmin)
	return user, nil
}

// UpdateUser applies upd. Callers cannot deactivate or demote themselves.
func (s *Service) UpdateUser(ctx context.Context, caller *models.User, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	if caller.ID == id && ((upd.IsActive != nil && !*upd.IsActive) || (upd.IsAdmin != nil && !*upd.IsAdmin)) {
		return nil, ErrSelfAction
	}
	var email string
	if upd.Email != nil {
		var err error
		if email, err = validateEmail(*upd.Email); err != nil {
			return nil, err
		}
	}
	user, err := s.users.UpdateUser(ctx, id, func(u *models.User) error {
		if upd.Email != nil {
			u.Email = email
		}
		if upd.FullName != nil {
			u.FullName = cleanName(upd.FullName)
		}
		if upd.IsActive != nil {
			u.IsActive = *upd.IsActive
		}
		if upd.IsAdmin != nil {
			u.IsAdmin = *upd.IsAdmin
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated", "user_id", id, "by", caller.ID)
	return user, nil
}

// ToggleAdmin flips the admin flag of another user.
func (s *Service) ToggleAdmin(ctx context.Context, caller *models.User, id uuid.UUID) (*models.User, error) {
	if caller.ID == id {
		return nil, ErrSelfAction
	}
	user, err := s.users.UpdateUser(ctx, id, func(u *models.User) error {
		u.IsAdmin = !u.IsAdmin
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin status toggled", "user_id", id, "is_admin", user.IsAdmin, "by", caller.ID)
	return user, nil
}

func (s *Service) ResetPassword(ctx context.Context, caller *models.User, id uuid.UUID, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.users.UpdateUser(ctx, id, func(u *models.User) error {
		u.Password = hash
		return nil
	}); err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", id, "by", caller.ID)
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, caller *models.User, id uuid.UUID) error {
	if caller.ID == id {
		return ErrSelfAction
	}
	user, err := s.users.DeleteUser(ctx, id, func(*models.User) error { return nil })
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id, "email", user.Email, "by", caller.ID)
	return nil
}

// SeedAdmin creates an active admin when the store has no users yet.
// It reports whether a user was created.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, NewUser{Email: email, Password: password, IsAdmin: true}); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return true, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func cleanName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
