package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"dme-backend/internal/shared/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("account is inactive")
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
)

// ValidationError reports the first field that failed registration checks.
type ValidationError struct {
	Field string
	Issue string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Issue }

type Service struct {
	Repo   Repo
	Tokens *auth.Manager
}

func NewService(repo Repo, tokens *auth.Manager) *Service {
	return &Service{Repo: repo, Tokens: tokens}
}

func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernameRe.MatchString(username) {
		return User{}, &ValidationError{Field: "username", Issue: "must be 3-50 characters of letters, digits or underscore"}
	}
	if !emailRe.MatchString(email) {
		return User{}, &ValidationError{Field: "email", Issue: "must be a valid email address"}
	}
	if len(password) < 6 {
		return User{}, &ValidationError{Field: "password", Issue: "must be at least 6 characters"}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (User, string, error) {
	if s == nil || s.Repo == nil || s.Tokens == nil {
		return User{}, "", errors.New("users service not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, "", ErrInvalidCredentials
	}

	user, err := s.Repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", ErrInvalidCredentials
		}
		return User{}, "", err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return User{}, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, "", ErrUserInactive
	}

	token, err := s.Tokens.Sign(user.ID, user.Email, user.Username, user.Role)
	if err != nil {
		return User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, errors.New("user id is required")
	}
	return s.Repo.GetByID(ctx, userID)
}

// UpsertFromSSO resolves the account for a federated identity. Accounts created
// here carry an empty password hash, so password login stays impossible for them.
func (s *Service) UpsertFromSSO(ctx context.Context, email string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errors.New("users service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRe.MatchString(email) {
		return User{}, &ValidationError{Field: "email", Issue: "must be a valid email address"}
	}

	user, err := s.Repo.GetByEmail(ctx, email)
	if err == nil {
		if !user.IsActive {
			return User{}, ErrUserInactive
		}
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	user = User{
		ID:       uuid.NewString(),
		Username: usernameFromEmail(email),
		Email:    email,
		Role:     RoleUser,
		IsActive: true,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		if !errors.Is(err, ErrConflict) {
			return User{}, err
		}
		// Username taken by another account; retry once with a random suffix.
		user.Username = user.Username + "_" + uuid.NewString()[:8]
		if err := s.Repo.Create(ctx, user); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

func usernameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if len(name) < 3 {
		name = name + "_" + uuid.NewString()[:8]
	}
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}
