package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/sirupsen/logrus"
	mail "github.com/xhit/go-simple-mail/v2"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").ParseFS(templatesFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.New("").ParseFS(templatesFS, "templates/*.txt"))
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Encryption         string // ssl, starttls or none
	InsecureSkipVerify bool
	FromEmail          string
	FromName           string
	Timeout            time.Duration
}

// EmailMessenger sends messages over SMTP.
type EmailMessenger struct {
	cfg    SMTPConfig
	logger logrus.FieldLogger
}

func NewEmailMessenger(cfg SMTPConfig, logger logrus.FieldLogger) *EmailMessenger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EmailMessenger{cfg: cfg, logger: logger}
}

var _ Messenger = (*EmailMessenger)(nil)

func (e *EmailMessenger) SendForgotPassword(ctx context.Context, msg ForgotPasswordMessage) error {
	if msg.Email == "" {
		return fmt.Errorf("user %s has no email address", msg.Username)
	}
	htmlBody, textBody, err := renderForgotPassword(msg)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}
	return e.send(ctx, msg.Email, msg.Subject(), htmlBody, textBody)
}

func renderForgotPassword(msg ForgotPasswordMessage) (string, string, error) {
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "forgot_password.html", msg); err != nil {
		return "", "", err
	}
	if err := textTemplates.ExecuteTemplate(&text, "forgot_password.txt", msg); err != nil {
		return "", "", err
	}
	return html.String(), text.String(), nil
}

func (e *EmailMessenger) server() *mail.SMTPServer {
	server := mail.NewSMTPClient()
	server.Host = e.cfg.Host
	server.Port = e.cfg.Port
	server.Username = e.cfg.Username
	server.Password = e.cfg.Password

	switch strings.ToLower(e.cfg.Encryption) {
	case "ssl", "tls":
		server.Encryption = mail.EncryptionSSLTLS
	case "starttls":
		server.Encryption = mail.EncryptionSTARTTLS
	default:
		server.Encryption = mail.EncryptionNone
	}
	if e.cfg.InsecureSkipVerify {
		server.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	server.KeepAlive = false
	server.ConnectTimeout = e.cfg.Timeout
	server.SendTimeout = e.cfg.Timeout
	return server
}

func (e *EmailMessenger) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	smtpClient, err := e.server().Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() {
		if closeErr := smtpClient.Close(); closeErr != nil {
			e.logger.WithError(closeErr).Warn("failed to close SMTP client")
		}
	}()

	email := mail.NewMSG()
	email.SetFrom(e.from())
	email.AddTo(to)
	email.SetSubject(subject)
	email.SetBody(mail.TextHTML, htmlBody)
	email.AddAlternative(mail.TextPlain, textBody)
	if email.Error != nil {
		return fmt.Errorf("failed to build email: %w", email.Error)
	}

	if err := email.Send(smtpClient); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email sent")
	return nil
}

func (e *EmailMessenger) from() string {
	name := e.cfg.FromName
	if name == "" {
		return e.cfg.FromEmail
	}
	return fmt.Sprintf("%s <%s>", name, e.cfg.FromEmail)
}
