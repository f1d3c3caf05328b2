// Package postgres stores users and groups in PostgreSQL through gorm.
package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userModel struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null;default:''"`
	Email        string `gorm:"not null;default:'';uniqueIndex:idx_users_email,where:email <> ''"`
	PasswordHash string `gorm:"not null"`
	Active       bool   `gorm:"not null"`
	CreatedAt    time.Time
	CreatedBy    string `gorm:"not null;default:'ADMIN'"`
	UpdatedAt    time.Time
	UpdatedBy    string       `gorm:"not null;default:'ADMIN'"`
	Groups       []groupModel `gorm:"many2many:user_groups;joinForeignKey:UserID;joinReferences:GroupID"`
}

func (userModel) TableName() string { return "users" }

type groupModel struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Active    bool   `gorm:"not null"`
	CreatedAt time.Time
	CreatedBy string `gorm:"not null;default:'ADMIN'"`
	UpdatedAt time.Time
	UpdatedBy string `gorm:"not null;default:'ADMIN'"`
}

func (groupModel) TableName() string { return "permission_groups" }

type userGroupModel struct {
	UserID    int64 `gorm:"primaryKey"`
	GroupID   int64 `gorm:"primaryKey"`
	CreatedAt time.Time
	CreatedBy string `gorm:"not null;default:'ADMIN'"`
	UpdatedAt time.Time
	UpdatedBy string `gorm:"not null;default:'ADMIN'"`
}

func (userGroupModel) TableName() string { return "user_groups" }

// Open connects to PostgreSQL using a pgx DSN.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

// Migrate creates or upgrades the users, groups and membership tables.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&userModel{}, "Groups", &userGroupModel{}); err != nil {
		return fmt.Errorf("setup user groups join table: %w", err)
	}
	if err := db.AutoMigrate(&userModel{}, &groupModel{}, &userGroupModel{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
