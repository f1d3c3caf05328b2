package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modular-auth/internal/blob"
	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

const legacyDocument = `[
  {"username": "alice", "name": "Alice", "email": "alice@example.com", "password": "hash-a"},
  {"username": "bob", "name": "Bob", "email": "bob@example.com", "password": "hash-b", "active": false, "groups": ["editors"]}
]`

func newTestRepository(t *testing.T, content string) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return NewRepository(blob.NewFileStore(path)), path
}

func TestInit_CreatesEmptyDocument(t *testing.T) {
	repo, path := newTestRepository(t, "")

	require.NoError(t, repo.Users().Init(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestInit_KeepsExistingDocument(t *testing.T) {
	repo, path := newTestRepository(t, legacyDocument)

	require.NoError(t, repo.Users().Init(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, legacyDocument, string(data))
}

func TestLegacySchema(t *testing.T) {
	repo, _ := newTestRepository(t, legacyDocument)
	users := repo.Users()
	ctx := context.Background()

	alice, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Active, "missing active flag means active")
	assert.Equal(t, "hash-a", alice.PasswordHash)
	assert.Empty(t, alice.Groups)

	bob, err := users.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, bob.Active)
	assert.Equal(t, []string{"editors"}, bob.Groups)

	_, err = users.GetByUsername(ctx, "carol")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreate(t *testing.T) {
	repo, path := newTestRepository(t, legacyDocument)
	users := repo.Users()
	ctx := context.Background()

	_, err := users.Create(ctx, &domain.User{Username: "alice", Email: "new@example.com", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = users.Create(ctx, &domain.User{Username: "carol", Email: "bob@example.com", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)

	id, err := users.Create(ctx, &domain.User{
		Username:     "carol",
		Name:         "Carol",
		Email:        "carol@example.com",
		PasswordHash: "hash-c",
		Active:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"username": "carol"`)
	assert.NotContains(t, string(data), `"active": true`, "active users keep the legacy shape")

	ok, err := users.UsernameExists(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.EmailExists(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdates(t *testing.T) {
	repo, _ := newTestRepository(t, legacyDocument)
	users := repo.Users()
	ctx := context.Background()

	require.NoError(t, users.UpdatePasswordByEmail(ctx, "alice@example.com", "new-hash"))
	assert.ErrorIs(t, users.UpdatePasswordByEmail(ctx, "ghost@example.com", "x"), repository.ErrNotFound)

	require.NoError(t, users.SetActive(ctx, "bob", true, "admin"))
	assert.ErrorIs(t, users.SetActive(ctx, "ghost", true, "admin"), repository.ErrNotFound)

	alice, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", alice.PasswordHash)

	alice.Email = "bob@example.com"
	assert.ErrorIs(t, users.Update(ctx, alice), repository.ErrConflict)

	alice.Email = "liddell@example.com"
	alice.Active = false
	require.NoError(t, users.Update(ctx, alice))

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "liddell@example.com", list[0].Email)
	assert.False(t, list[0].Active)
	assert.True(t, list[1].Active)
}

func TestGroups(t *testing.T) {
	repo, _ := newTestRepository(t, legacyDocument)
	groups := repo.Groups()
	ctx := context.Background()

	_, err := groups.Create(ctx, &domain.Group{Name: "editors"})
	assert.ErrorIs(t, err, repository.ErrNotSupported)
	assert.ErrorIs(t, groups.SetActive(ctx, "editors", false, "admin"), repository.ErrNotSupported)

	require.NoError(t, groups.AddUser(ctx, "alice", "viewers"))
	require.NoError(t, groups.AddUser(ctx, "alice", "viewers"))
	require.NoError(t, groups.AddUser(ctx, "alice", "editors"))
	assert.ErrorIs(t, groups.AddUser(ctx, "ghost", "viewers"), repository.ErrNotFound)

	ok, err := groups.Exists(ctx, "never-used")
	require.NoError(t, err)
	assert.True(t, ok, "any label can be put on a user record")

	names, err := groups.UserGroups(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"viewers", "editors"}, names)

	list, err := groups.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "editors", list[0].Name)
	assert.Equal(t, "viewers", list[1].Name)

	require.NoError(t, groups.RemoveUser(ctx, "alice", "viewers"))
	names, err = groups.UserGroups(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"editors"}, names)

	names, err = groups.UserGroups(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCorruptDocument(t *testing.T) {
	repo, _ := newTestRepository(t, `{not json`)

	_, err := repo.Users().GetByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
