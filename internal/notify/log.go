package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogMessenger writes messages to the log instead of sending them. The
// temporary password is only logged at debug level.
type LogMessenger struct {
	logger logrus.FieldLogger
}

func NewLogMessenger(logger logrus.FieldLogger) *LogMessenger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMessenger{logger: logger}
}

var _ Messenger = (*LogMessenger)(nil)

func (l *LogMessenger) SendForgotPassword(_ context.Context, msg ForgotPasswordMessage) error {
	entry := l.logger.WithFields(logrus.Fields{
		"username": msg.Username,
		"email":    msg.Email,
		"subject":  msg.Subject(),
	})
	entry.Info("forgot-password mail not sent: mail provider is log")
	entry.WithField("password", msg.Password).Debug("temporary password")
	return nil
}
