package http

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"modular-auth/internal/auth"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	usernameKey     = "username"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

// observe records request metrics by route pattern so path parameters do not
// explode label cardinality.
func (h *Handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		h.metrics.ObserveRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// RequireLogin sends visitors without a valid login to the login widget.
func (h *Handler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.sessions.CheckExistingSession(c); err != nil {
			message := "Not logged in..."
			if errors.Is(err, auth.ErrSessionExpired) {
				message = "Session expired..."
			}
			h.flash(c, flashWarning, message)
			c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Set(usernameKey, h.sessions.Username(c))
		c.Next()
	}
}

// RequireGroups lets the request through when the user belongs to any of
// groups or to the admin group. It must run after RequireLogin.
func (h *Handler) RequireGroups(groups ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := h.sessions.CheckGroupAccess(c, groups...)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		if !allowed {
			h.renderWith(c, http.StatusForbidden, "forbidden", "Forbidden", nil,
				flash{Level: flashError, Message: "Insufficient permissions."})
			c.Abort()
			return
		}
		c.Next()
	}
}
