package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

func newTestRepos(t *testing.T) (*UserRepository, *GroupRepository) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := NewUserRepository(db)
	groups := NewGroupRepository(db)
	require.NoError(t, users.Init(context.Background()))
	require.NoError(t, groups.Init(context.Background()))
	return users, groups
}

func seedUser(t *testing.T, repo *UserRepository, username, email string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		Name:         "Test " + username,
		Email:        email,
		PasswordHash: "hash",
		Active:       true,
	}
	_, err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()

	created := seedUser(t, users, "alice", "alice@example.com")
	assert.NotZero(t, created.ID)
	assert.Equal(t, "ADMIN", created.CreatedBy)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, got.Active)
	assert.Empty(t, got.Groups)

	byEmail, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", byEmail.Username)

	_, err = users.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_CreateConflict(t *testing.T) {
	users, _ := newTestRepos(t)
	seedUser(t, users, "alice", "alice@example.com")

	_, err := users.Create(context.Background(), &domain.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = users.Create(context.Background(), &domain.User{Username: "carol", Email: "alice@example.com", PasswordHash: "x", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUserRepository_Exists(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	seedUser(t, users, "alice", "alice@example.com")

	ok, err := users.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.EmailExists(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepository_UpdatePasswordAndStatus(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	seedUser(t, users, "alice", "alice@example.com")

	require.NoError(t, users.UpdatePasswordByEmail(ctx, "alice@example.com", "new-hash"))
	assert.ErrorIs(t, users.UpdatePasswordByEmail(ctx, "missing@example.com", "x"), repository.ErrNotFound)

	require.NoError(t, users.SetActive(ctx, "alice", false, "root"))

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.False(t, got.Active)
	assert.Equal(t, "root", got.UpdatedBy)
}

func TestUserRepository_Update(t *testing.T) {
	users, _ := newTestRepos(t)
	ctx := context.Background()
	seedUser(t, users, "alice", "alice@example.com")
	seedUser(t, users, "bob", "bob@example.com")

	alice, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	alice.Name = "Alice Liddell"
	alice.UpdatedBy = "root"
	require.NoError(t, users.Update(ctx, alice))

	alice.Email = "bob@example.com"
	assert.ErrorIs(t, users.Update(ctx, alice), repository.ErrConflict)

	assert.ErrorIs(t, users.Update(ctx, &domain.User{Username: "ghost"}), repository.ErrNotFound)

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice Liddell", list[0].Name)
	assert.Equal(t, "bob", list[1].Username)
}

func TestGroupRepository_Membership(t *testing.T) {
	users, groups := newTestRepos(t)
	ctx := context.Background()
	seedUser(t, users, "alice", "alice@example.com")

	_, err := groups.Create(ctx, &domain.Group{Name: "editors", Active: true})
	require.NoError(t, err)
	_, err = groups.Create(ctx, &domain.Group{Name: "viewers", Active: true})
	require.NoError(t, err)
	_, err = groups.Create(ctx, &domain.Group{Name: "editors", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)

	ok, err := groups.Exists(ctx, "editors")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = groups.Exists(ctx, "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, groups.AddUser(ctx, "alice", "editors"))
	require.NoError(t, groups.AddUser(ctx, "alice", "viewers"))
	// adding twice is a no-op
	require.NoError(t, groups.AddUser(ctx, "alice", "viewers"))

	assert.ErrorIs(t, groups.AddUser(ctx, "ghost", "editors"), repository.ErrNotFound)
	assert.ErrorIs(t, groups.AddUser(ctx, "alice", "ghosts"), repository.ErrNotFound)

	names, err := groups.UserGroups(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"editors", "viewers"}, names)

	require.NoError(t, groups.SetActive(ctx, "viewers", false, "root"))
	names, err = groups.UserGroups(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"editors"}, names)

	// user records still list inactive memberships
	alice, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"editors", "viewers"}, alice.Groups)

	require.NoError(t, groups.RemoveUser(ctx, "alice", "editors"))
	names, err = groups.UserGroups(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, names)

	all, err := groups.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].Active)

	assert.ErrorIs(t, groups.SetActive(ctx, "ghosts", true, "root"), repository.ErrNotFound)
}

func TestUserRepository_InitUpgradesLegacyTable(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (username, password_hash, created_at, updated_at) VALUES ('legacy', 'h', '2024-01-01 00:00:00', '2024-01-01 00:00:00')`)
	require.NoError(t, err)

	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	got, err := repo.GetByUsername(context.Background(), "legacy")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "ADMIN", got.CreatedBy)
	assert.Empty(t, got.Email)
}

func TestUserRepository_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM users WHERE username = \?`).
		WithArgs("alice").
		WillReturnError(errors.New("disk I/O error"))
	_, err = repo.UsernameExists(context.Background(), "alice")
	assert.ErrorContains(t, err, "count users")

	mock.ExpectExec(`UPDATE users SET active`).
		WillReturnError(errors.New("database is locked"))
	err = repo.SetActive(context.Background(), "alice", false, "root")
	assert.ErrorContains(t, err, "update user status")

	assert.NoError(t, mock.ExpectationsWereMet())
}
