package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"modular-auth/internal/auth"
	"modular-auth/internal/repository"
	"modular-auth/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() *template.Template {
	funcs := template.FuncMap{
		"ago": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return humanize.Time(t)
		},
		"has":  lo.Contains[string],
		"join": strings.Join,
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

const (
	flashError   = "error"
	flashWarning = "warning"
	flashSuccess = "success"
	flashInfo    = "info"
)

var flashLevels = []string{flashError, flashWarning, flashSuccess, flashInfo}

type flash struct {
	Level   string
	Message string
}

// page is the data every template receives.
type page struct {
	AppName           string
	LoginLabel        string
	Title             string
	Username          string
	ShowAdmin         bool
	AllowRegistration bool
	Flashes           []flash
	Data              any
}

func (h *Handler) render(c *gin.Context, status int, name, title string, data any) {
	h.renderWith(c, status, name, title, data)
}

// renderWith renders name with the pending flashes followed by extra.
func (h *Handler) renderWith(c *gin.Context, status int, name, title string, data any, extra ...flash) {
	c.HTML(status, name, page{
		AppName:           h.cfg.AppName,
		LoginLabel:        h.cfg.LoginLabel,
		Title:             title,
		Username:          c.GetString(usernameKey),
		ShowAdmin:         h.isAdmin(c),
		AllowRegistration: h.cfg.AllowRegistration,
		Flashes:           append(h.takeFlashes(c), extra...),
		Data:              data,
	})
}

// flash queues a message for the next rendered page.
func (h *Handler) flash(c *gin.Context, level, message string) {
	session := sessions.Default(c)
	session.AddFlash(message, level)
	if err := session.Save(); err != nil {
		h.logger.WithError(err).Warn("failed to save flash message")
	}
}

func (h *Handler) takeFlashes(c *gin.Context) []flash {
	session := sessions.Default(c)
	var out []flash
	for _, level := range flashLevels {
		for _, v := range session.Flashes(level) {
			if msg, ok := v.(string); ok {
				out = append(out, flash{Level: level, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		if err := session.Save(); err != nil {
			h.logger.WithError(err).Warn("failed to clear flash messages")
		}
	}
	return out
}

// redirect flashes message and sends the browser to location.
func (h *Handler) redirect(c *gin.Context, location, level, message string) {
	if message != "" {
		h.flash(c, level, message)
	}
	c.Redirect(http.StatusFound, location)
}

// fail renders the error page for failures no form can recover from.
func (h *Handler) fail(c *gin.Context, err error) {
	status, message := humanError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error("request failed")
	}
	_ = c.Error(err)
	h.renderWith(c, status, "error", "Error", nil, flash{Level: flashError, Message: message})
}

// humanError maps domain errors to a status code and the message shown to users.
func humanError(err error) (int, string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Message
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid Username or Password!"
	case errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired..."
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized, "Not logged in..."
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, "Sorry, username already exists!"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "Email already exists!"
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict, "User or email address already exists."
	case errors.Is(err, service.ErrEmailNotFound):
		return http.StatusNotFound, "Email does not exist"
	case errors.Is(err, service.ErrIncorrectTemporaryPassword):
		return http.StatusBadRequest, "Incorrect temporary password!"
	case errors.Is(err, service.ErrPasswordMismatch):
		return http.StatusBadRequest, "Passwords don't match!"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "Already exists."
	case errors.Is(err, repository.ErrNotSupported):
		return http.StatusNotImplemented, "Not supported by the configured storage backend."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

// safeNext only accepts local absolute paths as post-login destinations.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
