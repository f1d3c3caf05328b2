package domain

import "time"

// AdminGroup grants access to every group-protected page.
const AdminGroup = "admin"

// User represents an account that can log in through the auth widgets.
type User struct {
	ID           int64
	Username     string
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	Groups       []string
	CreatedAt    time.Time
	CreatedBy    string
	UpdatedAt    time.Time
	UpdatedBy    string
}

// Group is a named permission bucket used for page-level access control.
type Group struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
}
