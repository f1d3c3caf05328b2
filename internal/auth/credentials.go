package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

// ErrInvalidCredentials indicates that the username/password pair cannot log in.
// Unknown users, inactive users and wrong passwords are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialChecker verifies submitted passwords against stored hashes.
type CredentialChecker struct {
	users  repository.UserRepository
	groups repository.GroupRepository
	hasher Hasher
	logger logrus.FieldLogger
}

// NewCredentialChecker builds a checker. groups may be nil, in which case the
// groups stored on the user record are returned as-is.
func NewCredentialChecker(users repository.UserRepository, groups repository.GroupRepository, hasher Hasher, logger logrus.FieldLogger) *CredentialChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CredentialChecker{
		users:  users,
		groups: groups,
		hasher: hasher,
		logger: logger,
	}
}

// CheckCredentials returns the user with its active groups when the password matches.
func (c *CredentialChecker) CheckCredentials(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := c.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		c.logger.WithField("username", username).Info("login rejected for inactive user")
		return nil, ErrInvalidCredentials
	}

	ok, err := c.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		c.logger.WithError(err).WithField("username", username).Warn("stored password hash could not be verified")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if c.groups != nil {
		groups, err := c.groups.UserGroups(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("load user groups: %w", err)
		}
		user.Groups = groups
	}
	return user, nil
}
