package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"modular-auth/internal/auth"
	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

// ErrUserExists is returned when an admin creates a user whose username or email is taken.
var ErrUserExists = errors.New("user or email address already exists")

// CreateUserInput is the admin new-user form. A blank password is replaced
// with a random one the user must reset.
type CreateUserInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Active   bool
	Groups   []string
}

// UpdateUserInput is the admin edit-user form. A blank password keeps the current one.
type UpdateUserInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Active   bool
}

// AdminService backs the user and group management screens.
type AdminService interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, in CreateUserInput, by string) (*domain.User, error)
	UpdateUser(ctx context.Context, in UpdateUserInput, by string) (*domain.User, error)
	SetUserActive(ctx context.Context, username string, active bool, by string) error
	ToggleUserActive(ctx context.Context, username, by string) (bool, error)
	GrantGroup(ctx context.Context, username, group string) error
	RevokeGroup(ctx context.Context, username, group string) error
	ToggleUserGroup(ctx context.Context, username, group string) (bool, error)
	ListGroups(ctx context.Context, includeInactive bool) ([]domain.Group, error)
	CreateGroup(ctx context.Context, name, by string) (*domain.Group, error)
	SetGroupActive(ctx context.Context, name string, active bool, by string) error
	ToggleGroupActive(ctx context.Context, name, by string) (bool, error)
}

type adminService struct {
	users  repository.UserRepository
	groups repository.GroupRepository
	hasher auth.Hasher
	logger logrus.FieldLogger
}

func NewAdminService(users repository.UserRepository, groups repository.GroupRepository, hasher auth.Hasher, logger logrus.FieldLogger) AdminService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &adminService{users: users, groups: groups, hasher: hasher, logger: logger}
}

func (s *adminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u domain.User, _ int) domain.User { return *sanitizeUser(&u) }), nil
}

func (s *adminService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *adminService) CreateUser(ctx context.Context, in CreateUserInput, by string) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if !usernamePattern.MatchString(in.Username) {
		return nil, invalid("username", "Please enter a valid Username!")
	}
	if in.Email != "" && !validEmail(in.Email) {
		return nil, invalid("email", "Please enter a valid Email!")
	}
	groups := lo.Uniq(lo.Compact(in.Groups))
	for _, group := range groups {
		ok, err := s.groups.Exists(ctx, group)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalid("groups", fmt.Sprintf("Unknown group %s!", group))
		}
	}

	password := in.Password
	if password == "" {
		generated, err := auth.RandomToken(45)
		if err != nil {
			return nil, fmt.Errorf("generate password: %w", err)
		}
		password = generated
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Active:       in.Active,
		CreatedBy:    by,
		UpdatedBy:    by,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	for _, group := range groups {
		if err := s.groups.AddUser(ctx, user.Username, group); err != nil {
			return nil, fmt.Errorf("grant %s: %w", group, err)
		}
		user.Groups = append(user.Groups, group)
	}

	s.logger.WithFields(logrus.Fields{"username": user.Username, "by": by}).Info("user created")
	return sanitizeUser(user), nil
}

func (s *adminService) UpdateUser(ctx context.Context, in UpdateUserInput, by string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" && !validEmail(in.Email) {
		return nil, invalid("email", "Please enter a valid Email!")
	}

	user.Name = strings.TrimSpace(in.Name)
	user.Email = in.Email
	user.Active = in.Active
	user.UpdatedBy = by
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"username": user.Username, "by": by}).Info("user updated")
	return sanitizeUser(user), nil
}

func (s *adminService) SetUserActive(ctx context.Context, username string, active bool, by string) error {
	return s.users.SetActive(ctx, username, active, by)
}

func (s *adminService) ToggleUserActive(ctx context.Context, username, by string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	active := !user.Active
	if err := s.users.SetActive(ctx, username, active, by); err != nil {
		return false, err
	}
	return active, nil
}

func (s *adminService) GrantGroup(ctx context.Context, username, group string) error {
	return s.groups.AddUser(ctx, username, group)
}

func (s *adminService) RevokeGroup(ctx context.Context, username, group string) error {
	return s.groups.RemoveUser(ctx, username, group)
}

// ToggleUserGroup flips membership and reports whether the user is now a member.
func (s *adminService) ToggleUserGroup(ctx context.Context, username, group string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if lo.Contains(user.Groups, group) {
		return false, s.groups.RemoveUser(ctx, username, group)
	}
	return true, s.groups.AddUser(ctx, username, group)
}

func (s *adminService) ListGroups(ctx context.Context, includeInactive bool) ([]domain.Group, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	if !includeInactive {
		groups = lo.Filter(groups, func(g domain.Group, _ int) bool { return g.Active })
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *adminService) CreateGroup(ctx context.Context, name, by string) (*domain.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "Name required")
	}
	group := &domain.Group{Name: name, Active: true, CreatedBy: by, UpdatedBy: by}
	if _, err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"group": name, "by": by}).Info("group created")
	return group, nil
}

func (s *adminService) SetGroupActive(ctx context.Context, name string, active bool, by string) error {
	return s.groups.SetActive(ctx, name, active, by)
}

func (s *adminService) ToggleGroupActive(ctx context.Context, name, by string) (bool, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return false, err
	}
	group, ok := lo.Find(groups, func(g domain.Group) bool { return g.Name == name })
	if !ok {
		return false, fmt.Errorf("group %s: %w", name, repository.ErrNotFound)
	}
	active := !group.Active
	if err := s.groups.SetActive(ctx, name, active, by); err != nil {
		return false, err
	}
	return active, nil
}
