package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"modular-auth/internal/auth"
	"modular-auth/internal/domain"
	"modular-auth/internal/metrics"
	"modular-auth/internal/notify"
	"modular-auth/internal/repository"
)

var (
	// ErrUsernameTaken is returned when registering with an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrEmailTaken is returned when registering with an existing email address.
	ErrEmailTaken = errors.New("email already exists")
	// ErrEmailNotFound is returned by the password flows for unknown addresses.
	ErrEmailNotFound = errors.New("email does not exist")
	// ErrIncorrectTemporaryPassword is returned when the emailed password does not match.
	ErrIncorrectTemporaryPassword = errors.New("incorrect temporary password")
	// ErrPasswordMismatch is returned when the confirmation differs from the new password.
	ErrPasswordMismatch = errors.New("passwords don't match")
)

// ValidationError reports a rejected form field with a message fit for the UI.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// RegisterInput is the create-account form.
type RegisterInput struct {
	Name     string
	Email    string
	Username string
	Password string
}

// ResetInput is the reset-password form.
type ResetInput struct {
	Email             string
	TemporaryPassword string
	NewPassword       string
	ConfirmPassword   string
}

// UserService describes the self-service account flows.
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in ResetInput) error
}

type UserServiceConfig struct {
	AppName           string
	MinPasswordLength int
}

type userService struct {
	cfg         UserServiceConfig
	users       repository.UserRepository
	credentials *auth.CredentialChecker
	hasher      auth.Hasher
	mailer      notify.Dispatcher
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
}

func NewUserService(
	cfg UserServiceConfig,
	users repository.UserRepository,
	credentials *auth.CredentialChecker,
	hasher auth.Hasher,
	mailer notify.Dispatcher,
	m *metrics.Metrics,
	logger logrus.FieldLogger,
) UserService {
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &userService{
		cfg:         cfg,
		users:       users,
		credentials: credentials,
		hasher:      hasher,
		mailer:      mailer,
		metrics:     m,
		logger:      logger,
	}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	if in.Name == "" {
		return nil, invalid("name", "Please enter a valid name!")
	}
	if !validEmail(in.Email) {
		return nil, invalid("email", "Please enter a valid Email!")
	}
	taken, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	if !usernamePattern.MatchString(in.Username) {
		return nil, invalid("username", "Please enter a valid Username!")
	}
	taken, err = s.users.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}
	if err := s.checkPasswordLength("password", in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Active:       true,
		CreatedBy:    in.Username,
		UpdatedBy:    in.Username,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.metrics.Registration()
	s.logger.WithField("username", user.Username).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.credentials.CheckCredentials(ctx, username, password)
	switch {
	case err == nil:
		s.metrics.LoginAttempt(metrics.ResultSuccess)
		return sanitizeUser(user), nil
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.metrics.LoginAttempt(metrics.ResultFailure)
	default:
		s.metrics.LoginAttempt(metrics.ResultError)
	}
	return nil, err
}

func (s *userService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	temporary, err := auth.RandomToken(12)
	if err != nil {
		return fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := s.hasher.Hash(temporary)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordByEmail(ctx, email, hash); err != nil {
		return err
	}

	msg := notify.ForgotPasswordMessage{
		Username: user.Username,
		Email:    user.Email,
		AppName:  s.cfg.AppName,
		Password: temporary,
	}
	if err := s.mailer.Enqueue(ctx, msg); err != nil {
		// Nobody will receive the temporary password, so keep the old one.
		if rerr := s.users.UpdatePasswordByEmail(ctx, email, user.PasswordHash); rerr != nil {
			s.logger.WithError(rerr).WithField("username", user.Username).Error("restore password after failed mail")
		}
		return fmt.Errorf("queue forgot-password mail: %w", err)
	}

	s.metrics.PasswordReset("forgot")
	s.logger.WithField("username", user.Username).Info("temporary password issued")
	return nil
}

func (s *userService) ResetPassword(ctx context.Context, in ResetInput) error {
	in.Email = strings.TrimSpace(in.Email)
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, in.TemporaryPassword)
	if err != nil || !ok {
		return ErrIncorrectTemporaryPassword
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if err := s.checkPasswordLength("new_password", in.NewPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordByEmail(ctx, in.Email, hash); err != nil {
		return err
	}

	s.metrics.PasswordReset("reset")
	s.logger.WithField("username", user.Username).Info("password reset")
	return nil
}

func (s *userService) checkPasswordLength(field, password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return invalid(field, fmt.Sprintf("Password must be at least %d characters!", s.cfg.MinPasswordLength))
	}
	return nil
}

var validate = validator.New()

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	clean.Groups = append([]string(nil), user.Groups...)
	return &clean
}
