package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

var _ repository.GroupRepository = (*GroupRepository)(nil)

func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) (int64, error) {
	if group.CreatedBy == "" {
		group.CreatedBy = "ADMIN"
	}
	if group.UpdatedBy == "" {
		group.UpdatedBy = group.CreatedBy
	}
	m := groupModel{
		Name:      group.Name,
		Active:    group.Active,
		CreatedBy: group.CreatedBy,
		UpdatedBy: group.UpdatedBy,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert group %s: %w", group.Name, repository.ErrConflict)
		}
		return 0, fmt.Errorf("insert group: %w", err)
	}
	group.ID = m.ID
	group.CreatedAt = m.CreatedAt
	group.UpdatedAt = m.UpdatedAt
	return m.ID, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]domain.Group, error) {
	var models []groupModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return lo.Map(models, func(m groupModel, _ int) domain.Group {
		return domain.Group{
			ID:        m.ID,
			Name:      m.Name,
			Active:    m.Active,
			CreatedAt: m.CreatedAt,
			CreatedBy: m.CreatedBy,
			UpdatedAt: m.UpdatedAt,
			UpdatedBy: m.UpdatedBy,
		}
	}), nil
}

func (r *GroupRepository) SetActive(ctx context.Context, name string, active bool, by string) error {
	res := r.db.WithContext(ctx).Model(&groupModel{}).
		Where("name = ?", name).
		Updates(map[string]any{"active": active, "updated_by": by})
	if res.Error != nil {
		return fmt.Errorf("update group status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("group %s: %w", name, repository.ErrNotFound)
	}
	return nil
}

func (r *GroupRepository) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&groupModel{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count groups: %w", err)
	}
	return count > 0, nil
}

func (r *GroupRepository) AddUser(ctx context.Context, username, group string) error {
	userID, groupID, err := r.lookupIDs(ctx, username, group)
	if err != nil {
		return err
	}
	link := userGroupModel{UserID: userID, GroupID: groupID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return fmt.Errorf("add user to group: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveUser(ctx context.Context, username, group string) error {
	userID, groupID, err := r.lookupIDs(ctx, username, group)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Delete(&userGroupModel{}).Error
	if err != nil {
		return fmt.Errorf("remove user from group: %w", err)
	}
	return nil
}

func (r *GroupRepository) UserGroups(ctx context.Context, username string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("permission_groups").
		Joins("JOIN user_groups ON user_groups.group_id = permission_groups.id").
		Joins("JOIN users ON users.id = user_groups.user_id").
		Where("users.username = ? AND permission_groups.active = ?", username, true).
		Order("permission_groups.name ASC").
		Pluck("permission_groups.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return names, nil
}

func (r *GroupRepository) lookupIDs(ctx context.Context, username, group string) (int64, int64, error) {
	var u userModel
	if err := r.db.WithContext(ctx).Select("id").Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, fmt.Errorf("user %s: %w", username, repository.ErrNotFound)
		}
		return 0, 0, fmt.Errorf("lookup user: %w", err)
	}
	var g groupModel
	if err := r.db.WithContext(ctx).Select("id").Where("name = ?", group).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, fmt.Errorf("group %s: %w", group, repository.ErrNotFound)
		}
		return 0, 0, fmt.Errorf("lookup group: %w", err)
	}
	return u.ID, g.ID, nil
}
