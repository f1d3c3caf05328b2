package auth

import (
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
)

// StateSessionName is the per-browser session holding login state.
const StateSessionName = "modauth_session"

const (
	keyLoggedIn  = "logged_in"
	keyUsername  = "username"
	keyGroups    = "groups"
	keyLogoutHit = "logout_hit"
)

// State is the login state remembered for one browser.
type State struct {
	LoggedIn  bool
	Username  string
	Groups    []string
	LogoutHit bool
}

// SessionManager combines the auth cookie plugin with the signed state session.
// The state session never keeps a user logged in on its own: every check goes
// through the cookie plugin.
type SessionManager struct {
	cookies Cookies
	groups  repository.GroupRepository
	logger  logrus.FieldLogger
}

func NewSessionManager(cookies Cookies, groups repository.GroupRepository, logger logrus.FieldLogger) *SessionManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionManager{cookies: cookies, groups: groups, logger: logger}
}

// State reads the current state session.
func (m *SessionManager) State(c *gin.Context) State {
	session := sessions.Default(c)
	return State{
		LoggedIn:  getSessionBool(session, keyLoggedIn),
		Username:  getSessionString(session, keyUsername),
		Groups:    getSessionStrings(session, keyGroups),
		LogoutHit: getSessionBool(session, keyLogoutHit),
	}
}

// CheckExistingSession returns nil when the browser holds a valid login. It
// returns ErrNoSession after an explicit logout and otherwise whatever the
// cookie plugin reports.
func (m *SessionManager) CheckExistingSession(c *gin.Context) error {
	session := sessions.Default(c)
	if getSessionBool(session, keyLogoutHit) {
		return ErrNoSession
	}
	if err := m.cookies.Check(c); err != nil {
		if getSessionBool(session, keyLoggedIn) {
			session.Set(keyLoggedIn, false)
			session.Delete(keyGroups)
			if saveErr := session.Save(); saveErr != nil {
				m.logger.WithError(saveErr).Warn("failed to save session state")
			}
		}
		return err
	}

	username := m.cookies.Username(c)
	if !getSessionBool(session, keyLoggedIn) || getSessionString(session, keyUsername) != username {
		if getSessionString(session, keyUsername) != username {
			session.Delete(keyGroups)
		}
		session.Set(keyLoggedIn, true)
		session.Set(keyUsername, username)
		if err := session.Save(); err != nil {
			m.logger.WithError(err).Warn("failed to save session state")
		}
	}
	return nil
}

// Login issues the auth cookie and records the user's groups.
func (m *SessionManager) Login(c *gin.Context, user *domain.User) error {
	if err := m.cookies.Set(c, user.Username); err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Set(keyLoggedIn, true)
	session.Set(keyUsername, user.Username)
	session.Set(keyGroups, append([]string{}, user.Groups...))
	session.Set(keyLogoutHit, false)
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Logout expires the auth cookie and marks the browser as logged out.
func (m *SessionManager) Logout(c *gin.Context) error {
	m.cookies.Expire(c)
	session := sessions.Default(c)
	session.Set(keyLoggedIn, false)
	session.Delete(keyGroups)
	session.Set(keyLogoutHit, true)
	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Username is the logged-in username, or "" when no valid login exists.
func (m *SessionManager) Username(c *gin.Context) string {
	if m.CheckExistingSession(c) != nil {
		return ""
	}
	return m.cookies.Username(c)
}

// Groups returns the cached groups for the session, loading them from the
// repository when the cache is empty.
func (m *SessionManager) Groups(c *gin.Context) ([]string, error) {
	session := sessions.Default(c)
	if session.Get(keyGroups) != nil {
		return getSessionStrings(session, keyGroups), nil
	}
	username := m.Username(c)
	if username == "" || m.groups == nil {
		return nil, nil
	}
	groups, err := m.groups.UserGroups(c.Request.Context(), username)
	if err != nil {
		return nil, fmt.Errorf("load groups for %s: %w", username, err)
	}
	session.Set(keyGroups, append([]string{}, groups...))
	if err := session.Save(); err != nil {
		m.logger.WithError(err).Warn("failed to save session state")
	}
	return groups, nil
}

// CheckGroupAccess reports whether the logged-in user may see a page
// restricted to any of the given groups.
func (m *SessionManager) CheckGroupAccess(c *gin.Context, groups ...string) (bool, error) {
	if m.CheckExistingSession(c) != nil {
		return false, nil
	}
	userGroups, err := m.Groups(c)
	if err != nil {
		return false, err
	}
	return HasGroupAccess(groups, userGroups), nil
}

func getSessionString(session sessions.Session, key string) string {
	if val := session.Get(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getSessionBool(session sessions.Session, key string) bool {
	if val := session.Get(key); val != nil {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

func getSessionStrings(session sessions.Session, key string) []string {
	if val := session.Get(key); val != nil {
		if s, ok := val.([]string); ok {
			return s
		}
	}
	return nil
}
