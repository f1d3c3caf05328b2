// Package jsonfile implements the user repositories over a single JSON document:
//
//	[{"username": "...", "name": "...", "email": "...", "password": "<hash>"}]
//
// Records may carry "active" (missing means active) and "groups". There is no
// group registry: groups exist as long as a user references them.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"modular-auth/internal/blob"
	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

type record struct {
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Active   *bool    `json:"active,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

func (r record) toDomain(id int64) domain.User {
	return domain.User{
		ID:           id,
		Username:     r.Username,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.Password,
		Active:       r.Active == nil || *r.Active,
		Groups:       append([]string(nil), r.Groups...),
	}
}

func (r *record) setActive(active bool) {
	if active {
		r.Active = nil
		return
	}
	r.Active = lo.ToPtr(false)
}

// Repository serializes every read-modify-write of the document.
type Repository struct {
	mu    sync.Mutex
	store blob.Store
}

func NewRepository(store blob.Store) *Repository {
	return &Repository{store: store}
}

// Users and Groups expose the two repository views over the same document.
func (r *Repository) Users() repository.UserRepository { return (*userRepository)(r) }

func (r *Repository) Groups() repository.GroupRepository { return (*groupRepository)(r) }

func (r *Repository) loadLocked(ctx context.Context) ([]record, error) {
	data, err := r.store.Read(ctx)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.store.Location(), err)
	}
	return records, nil
}

func (r *Repository) saveLocked(ctx context.Context, records []record) error {
	if records == nil {
		records = []record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users: %w", err)
	}
	data = append(data, '\n')
	return r.store.Write(ctx, data)
}

// update loads the document, applies fn and saves the result when fn succeeds.
func (r *Repository) update(ctx context.Context, fn func([]record) ([]record, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadLocked(ctx)
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return r.saveLocked(ctx, records)
}

func (r *Repository) view(ctx context.Context) ([]record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func indexBy(records []record, match func(record) bool) int {
	_, idx, ok := lo.FindIndexOf(records, match)
	if !ok {
		return -1
	}
	return idx
}

func byUsername(username string) func(record) bool {
	return func(rec record) bool { return rec.Username == username }
}

func byEmail(email string) func(record) bool {
	return func(rec record) bool { return email != "" && rec.Email == email }
}

type userRepository Repository

var _ repository.UserRepository = (*userRepository)(nil)

func (u *userRepository) repo() *Repository { return (*Repository)(u) }

// Init writes an empty document when none exists yet.
func (u *userRepository) Init(ctx context.Context) error {
	r := u.repo()
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.store.Read(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, blob.ErrNotExist) {
		return err
	}
	return r.saveLocked(ctx, nil)
}

func (u *userRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	var id int64
	err := u.repo().update(ctx, func(records []record) ([]record, error) {
		if indexBy(records, byUsername(user.Username)) >= 0 || indexBy(records, byEmail(user.Email)) >= 0 {
			return nil, fmt.Errorf("insert user %s: %w", user.Username, repository.ErrConflict)
		}
		rec := record{
			Username: user.Username,
			Name:     user.Name,
			Email:    user.Email,
			Password: user.PasswordHash,
			Groups:   lo.Uniq(user.Groups),
		}
		rec.setActive(user.Active)
		records = append(records, rec)
		id = int64(len(records))
		return records, nil
	})
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return id, nil
}

func (u *userRepository) find(ctx context.Context, match func(record) bool) (*domain.User, error) {
	records, err := u.repo().view(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexBy(records, match)
	if idx < 0 {
		return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
	}
	user := records[idx].toDomain(int64(idx + 1))
	return &user, nil
}

func (u *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return u.find(ctx, byUsername(username))
}

func (u *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.find(ctx, byEmail(email))
}

func (u *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	records, err := u.repo().view(ctx)
	if err != nil {
		return false, err
	}
	return indexBy(records, byUsername(username)) >= 0, nil
}

func (u *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	records, err := u.repo().view(ctx)
	if err != nil {
		return false, err
	}
	return indexBy(records, byEmail(email)) >= 0, nil
}

func (u *userRepository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	return u.repo().update(ctx, func(records []record) ([]record, error) {
		idx := indexBy(records, byEmail(email))
		if idx < 0 {
			return nil, fmt.Errorf("user with email %s: %w", email, repository.ErrNotFound)
		}
		records[idx].Password = passwordHash
		return records, nil
	})
}

func (u *userRepository) Update(ctx context.Context, user *domain.User) error {
	return u.repo().update(ctx, func(records []record) ([]record, error) {
		idx := indexBy(records, byUsername(user.Username))
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", user.Username, repository.ErrNotFound)
		}
		if other := indexBy(records, byEmail(user.Email)); other >= 0 && other != idx {
			return nil, fmt.Errorf("update user %s: %w", user.Username, repository.ErrConflict)
		}
		rec := &records[idx]
		rec.Name = user.Name
		rec.Email = user.Email
		rec.Password = user.PasswordHash
		rec.setActive(user.Active)
		return records, nil
	})
}

func (u *userRepository) SetActive(ctx context.Context, username string, active bool, _ string) error {
	return u.repo().update(ctx, func(records []record) ([]record, error) {
		idx := indexBy(records, byUsername(username))
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
		}
		records[idx].setActive(active)
		return records, nil
	})
}

func (u *userRepository) List(ctx context.Context) ([]domain.User, error) {
	records, err := u.repo().view(ctx)
	if err != nil {
		return nil, err
	}
	users := lo.Map(records, func(rec record, i int) domain.User {
		return rec.toDomain(int64(i + 1))
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

type groupRepository Repository

var _ repository.GroupRepository = (*groupRepository)(nil)

func (g *groupRepository) repo() *Repository { return (*Repository)(g) }

func (g *groupRepository) Create(context.Context, *domain.Group) (int64, error) {
	return 0, fmt.Errorf("create group: %w", repository.ErrNotSupported)
}

func (g *groupRepository) SetActive(context.Context, string, bool, string) error {
	return fmt.Errorf("update group status: %w", repository.ErrNotSupported)
}

// List returns every group referenced by at least one user.
func (g *groupRepository) List(ctx context.Context) ([]domain.Group, error) {
	records, err := g.repo().view(ctx)
	if err != nil {
		return nil, err
	}
	names := lo.Uniq(lo.FlatMap(records, func(rec record, _ int) []string { return rec.Groups }))
	sort.Strings(names)
	return lo.Map(names, func(name string, i int) domain.Group {
		return domain.Group{ID: int64(i + 1), Name: name, Active: true}
	}), nil
}

// Exists is always true: groups in the document are labels on user records.
func (g *groupRepository) Exists(context.Context, string) (bool, error) {
	return true, nil
}

func (g *groupRepository) AddUser(ctx context.Context, username, group string) error {
	return g.repo().update(ctx, func(records []record) ([]record, error) {
		idx := indexBy(records, byUsername(username))
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
		}
		if !lo.Contains(records[idx].Groups, group) {
			records[idx].Groups = append(records[idx].Groups, group)
		}
		return records, nil
	})
}

func (g *groupRepository) RemoveUser(ctx context.Context, username, group string) error {
	return g.repo().update(ctx, func(records []record) ([]record, error) {
		idx := indexBy(records, byUsername(username))
		if idx < 0 {
			return nil, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
		}
		records[idx].Groups = lo.Without(records[idx].Groups, group)
		return records, nil
	})
}

func (g *groupRepository) UserGroups(ctx context.Context, username string) ([]string, error) {
	records, err := g.repo().view(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexBy(records, byUsername(username))
	if idx < 0 {
		return nil, nil
	}
	return append([]string(nil), records[idx].Groups...), nil
}
