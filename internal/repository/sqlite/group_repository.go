package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

const createGroupsTable = `
CREATE TABLE IF NOT EXISTS permission_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	created_by TEXT NOT NULL DEFAULT 'ADMIN',
	updated_at DATETIME NOT NULL,
	updated_by TEXT NOT NULL DEFAULT 'ADMIN'
);
`

const createUserGroupsTable = `
CREATE TABLE IF NOT EXISTS user_groups (
	group_id INTEGER NOT NULL REFERENCES permission_groups(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at DATETIME NOT NULL,
	created_by TEXT NOT NULL DEFAULT 'ADMIN',
	updated_at DATETIME NOT NULL,
	updated_by TEXT NOT NULL DEFAULT 'ADMIN',
	PRIMARY KEY (group_id, user_id)
);
`

type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

var _ repository.GroupRepository = (*GroupRepository)(nil)

// Init creates the group tables. The users table must exist already.
func (r *GroupRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createGroupsTable); err != nil {
		return fmt.Errorf("create groups table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createUserGroupsTable); err != nil {
		return fmt.Errorf("create user groups table: %w", err)
	}
	return nil
}

func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) (int64, error) {
	now := time.Now().UTC()
	group.CreatedAt = now
	group.UpdatedAt = now
	if group.CreatedBy == "" {
		group.CreatedBy = "ADMIN"
	}
	if group.UpdatedBy == "" {
		group.UpdatedBy = group.CreatedBy
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO permission_groups (name, active, created_at, created_by, updated_at, updated_by)
VALUES (?, ?, ?, ?, ?, ?)`,
		group.Name,
		group.Active,
		group.CreatedAt,
		group.CreatedBy,
		group.UpdatedAt,
		group.UpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert group %s: %w", group.Name, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert group: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("group last insert id: %w", err)
	}
	group.ID = id
	return id, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, active, created_at, created_by, updated_at, updated_by
FROM permission_groups
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Active, &g.CreatedAt, &g.CreatedBy, &g.UpdatedAt, &g.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

func (r *GroupRepository) SetActive(ctx context.Context, name string, active bool, by string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE permission_groups SET active = ?, updated_at = ?, updated_by = ?
WHERE name = ?`,
		active,
		time.Now().UTC(),
		by,
		name,
	)
	if err != nil {
		return fmt.Errorf("update group status: %w", err)
	}
	return expectAffected(res, "group "+name)
}

func (r *GroupRepository) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM permission_groups WHERE name = ?`, name).Scan(&count); err != nil {
		return false, fmt.Errorf("count groups: %w", err)
	}
	return count > 0, nil
}

func (r *GroupRepository) AddUser(ctx context.Context, username, group string) error {
	userID, groupID, err := r.lookupIDs(ctx, username, group)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
INSERT OR IGNORE INTO user_groups (group_id, user_id, created_at, updated_at)
VALUES (?, ?, ?, ?)`,
		groupID,
		userID,
		now,
		now,
	); err != nil {
		return fmt.Errorf("add user to group: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveUser(ctx context.Context, username, group string) error {
	userID, groupID, err := r.lookupIDs(ctx, username, group)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
DELETE FROM user_groups WHERE group_id = ? AND user_id = ?`,
		groupID,
		userID,
	); err != nil {
		return fmt.Errorf("remove user from group: %w", err)
	}
	return nil
}

func (r *GroupRepository) UserGroups(ctx context.Context, username string) ([]string, error) {
	return memberships(ctx, r.db, username, true)
}

func (r *GroupRepository) lookupIDs(ctx context.Context, username, group string) (int64, int64, error) {
	var userID, groupID int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
		}
		return 0, 0, fmt.Errorf("lookup user: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM permission_groups WHERE name = ?`, group).Scan(&groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("group %s: %w", group, repository.ErrNotFound)
		}
		return 0, 0, fmt.Errorf("lookup group: %w", err)
	}
	return userID, groupID, nil
}

func memberships(ctx context.Context, db *sql.DB, username string, activeOnly bool) ([]string, error) {
	query := `
SELECT g.name
FROM permission_groups g
JOIN user_groups ug ON ug.group_id = g.id
JOIN users u ON u.id = ug.user_id
WHERE u.username = ?`
	if activeOnly {
		query += ` AND g.active = 1`
	}
	query += ` ORDER BY g.name ASC`

	rows, err := db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan user group: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user groups: %w", err)
	}
	return names, nil
}
