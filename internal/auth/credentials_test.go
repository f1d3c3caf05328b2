package auth

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
	"modular-auth/internal/repository/mocks"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCheckCredentials(t *testing.T) {
	hasher := fastHasher()
	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("success loads active groups", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		groups := new(mocks.MockGroupRepository)
		users.On("GetByUsername", ctx, "alice").
			Return(&domain.User{Username: "alice", PasswordHash: hash, Active: true, Groups: []string{"old", "editors"}}, nil)
		groups.On("UserGroups", ctx, "alice").Return([]string{"editors"}, nil)

		checker := NewCredentialChecker(users, groups, hasher, quietLogger())
		user, err := checker.CheckCredentials(ctx, " alice ", "s3cret")

		require.NoError(t, err)
		assert.Equal(t, []string{"editors"}, user.Groups)
		users.AssertExpectations(t)
		groups.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		users.On("GetByUsername", ctx, "ghost").Return(nil, repository.ErrNotFound)

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "ghost", "s3cret")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		users.On("GetByUsername", ctx, "alice").
			Return(&domain.User{Username: "alice", PasswordHash: hash, Active: true}, nil)

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "alice", "guess")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		users.On("GetByUsername", ctx, "alice").
			Return(&domain.User{Username: "alice", PasswordHash: hash, Active: false}, nil)

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "alice", "s3cret")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("corrupt hash", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		users.On("GetByUsername", ctx, "alice").
			Return(&domain.User{Username: "alice", PasswordHash: "plain", Active: true}, nil)

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "alice", "plain")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("empty input skips lookup", func(t *testing.T) {
		users := new(mocks.MockUserRepository)

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "", "x")

		assert.ErrorIs(t, err, ErrInvalidCredentials)
		users.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		users := new(mocks.MockUserRepository)
		users.On("GetByUsername", ctx, "alice").Return(nil, errors.New("disk full"))

		checker := NewCredentialChecker(users, nil, hasher, quietLogger())
		_, err := checker.CheckCredentials(ctx, "alice", "s3cret")

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})
}
