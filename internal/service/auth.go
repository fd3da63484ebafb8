// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces and the authz.Guard, never a concrete
// database, and return apperror values the handler maps to HTTP. Nothing in
// this package imports net/http.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/campus-clubs/internal/apperror"
	"github.com/sakif/campus-clubs/internal/auth"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/repository"
)

const (
	MaxInstitutionIDLength = 64
	MaxProfileFieldLength  = 100
	MaxInterests           = 50
)

// invalidCredentials is the one error both login failure paths return.
const invalidCredentials = "invalid institution ID or password"

// AuthService owns registration, login and the caller's own profile.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users        repository.UserRepository        → accounts and interests
//   - memberships  repository.MembershipRepository  → clubs shown on the profile
//   - tokens       *auth.TokenService               → issue JWTs
//   - passwords    *auth.PasswordService            → bcrypt
type AuthService struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	logger      *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		memberships: memberships,
		tokens:      tokens,
		passwords:   passwords,
		logger:      logger,
	}
}

// RegisterInput is the body of POST /accounts/register.
type RegisterInput struct {
	InstitutionID string `json:"institutionId"`
	Password      string `json:"password"`
	Name          string `json:"name"`
	Grade         string `json:"grade"`
	Major         string `json:"major"`
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.InstitutionID, validation.Required, validation.RuneLength(1, MaxInstitutionIDLength)),
		validation.Field(&in.Password, validation.Required, validation.By(maxBytes(auth.MaxPasswordBytes))),
		validation.Field(&in.Name, validation.RuneLength(0, MaxProfileFieldLength)),
		validation.Field(&in.Grade, validation.RuneLength(0, MaxProfileFieldLength)),
		validation.Field(&in.Major, validation.RuneLength(0, MaxProfileFieldLength)),
	)
}

// LoginInput is the body of POST /accounts/login.
type LoginInput struct {
	InstitutionID string `json:"institutionId"`
	Password      string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.InstitutionID, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// ProfileInput is the body of PUT /accounts/me. Interests replaces the
// whole set.
type ProfileInput struct {
	Name      string   `json:"name"`
	Grade     string   `json:"grade"`
	Major     string   `json:"major"`
	Interests []string `json:"interests"`
}

func (in ProfileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, MaxProfileFieldLength)),
		validation.Field(&in.Grade, validation.RuneLength(0, MaxProfileFieldLength)),
		validation.Field(&in.Major, validation.RuneLength(0, MaxProfileFieldLength)),
		validation.Field(&in.Interests, validation.Length(0, MaxInterests)),
	)
}

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

// Register creates an account. A taken institution ID is a Conflict; the
// users table's UNIQUE constraint makes that check atomic.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.InstitutionID = strings.TrimSpace(in.InstitutionID)
	in.Name = strings.TrimSpace(in.Name)
	in.Grade = strings.TrimSpace(in.Grade)
	in.Major = strings.TrimSpace(in.Major)

	if err := validate(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		InstitutionID: in.InstitutionID,
		PasswordHash:  hash,
		Name:          in.Name,
		Grade:         in.Grade,
		Major:         in.Major,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("institution ID already exists, please choose a different one")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("institutionID", user.InstitutionID),
	)
	return user, nil
}

// Login checks the credentials and issues a token.
//
// An unknown institution ID and a wrong password produce the same error, and
// the unknown-ID path still pays for one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.InstitutionID = strings.TrimSpace(in.InstitutionID)
	if err := validate(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByInstitutionID(ctx, in.InstitutionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyDummy(in.Password)
			s.logger.Warn("login failed", slog.String("reason", "unknown institution ID"))
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("login failed",
				slog.String("reason", "wrong password"),
				slog.String("userID", user.ID),
			)
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %s: %w", user.ID, err)
	}

	issuedAt := time.Now()
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &LoginResult{
		Token:     token,
		ExpiresAt: issuedAt.Add(s.tokens.TTL()).UTC(),
		UserID:    user.ID,
	}, nil
}

// Profile returns the user with their memberships and interests.
// NotFound means the token's subject has since disappeared.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	memberships, err := s.memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing memberships of %s: %w", userID, err)
	}
	interests, err := s.users.ListInterests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing interests of %s: %w", userID, err)
	}

	return &model.Profile{
		User:        *user,
		Memberships: nonNil(memberships),
		Interests:   nonNil(interests),
	}, nil
}

// UpdateProfile replaces name/grade/major and the whole interest set.
// Interests are trimmed, blanks dropped and duplicates collapsed.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Grade = strings.TrimSpace(in.Grade)
	in.Major = strings.TrimSpace(in.Major)
	in.Interests = normalizeInterests(in.Interests)

	if err := validate(in); err != nil {
		return err
	}

	user := &model.User{ID: userID, Name: in.Name, Grade: in.Grade, Major: in.Major}
	if err := s.users.UpdateProfile(ctx, user, in.Interests); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/auth: updating profile of %s: %w", userID, err)
	}

	s.logger.Info("profile updated",
		slog.String("userID", userID),
		slog.Int("interests", len(in.Interests)),
	)
	return nil
}

func normalizeInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// maxBytes is an ozzo rule limiting a string's length in bytes.
func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return fmt.Errorf("must be %d bytes or fewer", n)
		}
		return nil
	}
}

// nonNil keeps empty collections rendering as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
