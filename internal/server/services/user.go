// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login and profile lookup, and
// asks the token authority for credentials.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/models"
	"github.com/dmitrijs2005/credport/internal/server/repositories/repomanager"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

var selfServiceRoles = map[string]bool{
	auth.RoleHolder:    true,
	auth.RoleIssuer:    true,
	auth.RoleRecruiter: true,
}

// RegisterInput is what a caller supplies to create an account. An empty
// Role means holder.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// UserService provides account operations:
// - Register: validate, hash and store a user, then mint tokens
// - Login: verify credentials and mint tokens
// - Me: load the profile behind an authenticated token
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	authority   *auth.Authority
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService constructs a UserService. db may be nil when the manager
// does not need one.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, authority *auth.Authority, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &UserService{
		db:          db,
		repomanager: m,
		authority:   authority,
		logger:      logger.With("module", "users"),
	}
}

// Register validates in, stores the user and returns a fresh TokenPair.
// Every problem with the input is reported at once in a
// *common.ValidationError.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, *auth.TokenPair, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = auth.RoleHolder
	}

	if err := validateRegistration(in); err != nil {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("error creating user: %w", err)
	}

	pair, err := s.authority.Issue(toAuthUser(u))
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, pair, nil
}

// Login verifies username and password and returns a fresh TokenPair. An
// unknown user and a wrong password fail identically and take the same time.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, *auth.TokenPair, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			auth.ComparePassword(s.getDummyHash(), password)
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, common.ErrorInternal
	}

	if !auth.ComparePassword(user.PasswordHash, password) {
		return nil, nil, common.ErrInvalidCredentials
	}

	pair, err := s.authority.Issue(toAuthUser(user))
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	return user, pair, nil
}

// Me returns the stored profile for userID.
func (s *UserService) Me(ctx context.Context, userID int64) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	u, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}
	return u, nil
}

// --- helpers below ---

func validateRegistration(in RegisterInput) error {
	v := &common.ValidationError{}

	if !usernameRe.MatchString(in.Username) {
		v.Add("invalid username")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			v.Add("invalid email")
		}
	}
	if !selfServiceRoles[in.Role] {
		v.Add("role not allowed")
	}

	var pwErr *common.ValidationError
	if err := auth.ValidatePassword(in.Password); errors.As(err, &pwErr) {
		v.Problems = append(v.Problems, pwErr.Problems...)
	}

	return v.OrNil()
}

func (s *UserService) getDummyHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("credport-login-timing")
	})
	return s.dummyHash
}

func toAuthUser(u *models.User) auth.User {
	return auth.User{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}
