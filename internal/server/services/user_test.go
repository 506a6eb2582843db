package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/dbx"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/models"
	"github.com/dmitrijs2005/credport/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/credport/internal/server/repositories/users"
)

// --- helpers ---

func newAuthority(t *testing.T) *auth.Authority {
	t.Helper()
	a, err := auth.NewAuthority(auth.Options{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		App:           "wallet",
	})
	require.NoError(t, err)
	return a
}

func newUserService(t *testing.T, rm repomanager.RepositoryManager) *UserService {
	t.Helper()
	return NewUserService(nil, rm, newAuthority(t), nil)
}

type fakeUsersRepo struct {
	createErr error
	getOut    *models.User
	getErr    error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = 1
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(context.Context, string) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) GetByID(context.Context, int64) (*models.User, error) {
	return f.getOut, f.getErr
}

type fakeRepoManager struct{ u *fakeUsersRepo }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }

func TestRegister_WeakPasswordThenStrong(t *testing.T) {
	s := newUserService(t, repomanager.NewMemoryRepositoryManager())
	ctx := context.Background()

	_, _, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "123"})
	require.ErrorIs(t, err, common.ErrValidation)
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "too short")

	u, pair, err := s.Register(ctx, RegisterInput{Username: "alice", Password: "Alice#2024Secure"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, auth.RoleHolder, u.Role)
	assert.NotEqual(t, "Alice#2024Secure", u.PasswordHash)
}

func TestRegister_CollectsEveryProblem(t *testing.T) {
	s := newUserService(t, repomanager.NewMemoryRepositoryManager())

	_, _, err := s.Register(context.Background(), RegisterInput{
		Username: "a!",
		Email:    "not-an-email",
		Role:     auth.RoleAdmin,
		Password: "short",
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Subset(t, verr.Problems, []string{"invalid username", "invalid email", "role not allowed", "too short"})
}

func TestRegister_Duplicate(t *testing.T) {
	s := newUserService(t, repomanager.NewMemoryRepositoryManager())
	ctx := context.Background()
	in := RegisterInput{Username: "alice", Password: "Alice#2024Secure", Role: auth.RoleIssuer}

	_, _, err := s.Register(ctx, in)
	require.NoError(t, err)
	_, _, err = s.Register(ctx, in)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRegister_RepoError(t *testing.T) {
	s := newUserService(t, &fakeRepoManager{u: &fakeUsersRepo{createErr: errors.New("db down")}})

	_, _, err := s.Register(context.Background(), RegisterInput{Username: "alice", Password: "Alice#2024Secure"})
	assert.ErrorContains(t, err, "error creating user")
}

func TestLogin(t *testing.T) {
	authority := newAuthority(t)
	s := NewUserService(nil, repomanager.NewMemoryRepositoryManager(), authority, nil)
	ctx := context.Background()

	_, _, err := s.Register(ctx, RegisterInput{Username: "bob", Password: "Bob#2024Secure", Role: auth.RoleRecruiter})
	require.NoError(t, err)

	u, pair, err := s.Login(ctx, "bob", "Bob#2024Secure")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)

	payload, err := authority.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleRecruiter, payload.Role)
	assert.Equal(t, "wallet", payload.App)

	_, _, err = s.Login(ctx, "bob", "wrong")
	assert.Equal(t, common.ErrInvalidCredentials, err)

	_, _, err = s.Login(ctx, "nobody", "Bob#2024Secure")
	assert.Equal(t, common.ErrInvalidCredentials, err)
}

func TestLogin_RepoFailureIsInternal(t *testing.T) {
	s := newUserService(t, &fakeRepoManager{u: &fakeUsersRepo{getErr: errors.New("db down")}})

	_, _, err := s.Login(context.Background(), "bob", "x")
	assert.Equal(t, common.ErrorInternal, err)
}

func TestMe(t *testing.T) {
	created := &models.User{ID: 5, Username: "carol", Role: auth.RoleIssuer, CreatedAt: time.Now()}
	s := newUserService(t, &fakeRepoManager{u: &fakeUsersRepo{getOut: created}})

	u, err := s.Me(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, created, u)

	s = newUserService(t, &fakeRepoManager{u: &fakeUsersRepo{getErr: common.ErrorNotFound}})
	_, err = s.Me(context.Background(), 5)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
