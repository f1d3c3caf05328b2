// Package notify delivers account emails such as temporary passwords.
package notify

import (
	"context"
	"fmt"
)

// ForgotPasswordMessage carries a freshly generated temporary password.
type ForgotPasswordMessage struct {
	Username string
	Email    string
	AppName  string
	Password string
}

// Subject is the mail subject line.
func (m ForgotPasswordMessage) Subject() string {
	return fmt.Sprintf("%s: Login Password!", m.AppName)
}

// Messenger sends account messages to users.
type Messenger interface {
	SendForgotPassword(ctx context.Context, msg ForgotPasswordMessage) error
}
