package http

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"modular-auth/internal/auth"
	"modular-auth/internal/domain"
	"modular-auth/internal/metrics"
	"modular-auth/internal/service"
)

// Config holds the presentation settings of the widgets.
type Config struct {
	AppName           string
	LoginLabel        string
	AllowRegistration bool
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	cfg      Config
	users    service.UserService
	admin    service.AdminService
	sessions *auth.SessionManager
	store    sessions.Store
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
}

// NewHandler builds the handler. admin may be nil, in which case the admin
// screens are not registered.
func NewHandler(
	cfg Config,
	users service.UserService,
	admin service.AdminService,
	sessionManager *auth.SessionManager,
	store sessions.Store,
	m *metrics.Metrics,
	logger logrus.FieldLogger,
) *Handler {
	if cfg.AppName == "" {
		cfg.AppName = "modauth"
	}
	if cfg.LoginLabel == "" {
		cfg.LoginLabel = "Login"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		cfg:      cfg,
		users:    users,
		admin:    admin,
		sessions: sessionManager,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(
		requestID(),
		requestLogger(h.logger),
		h.observe(),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
		sessions.Sessions(auth.StateSessionName, h.store),
	)
	router.SetHTMLTemplate(parseTemplates())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if h.cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	router.GET("/login", h.loginForm)
	router.POST("/login", h.login)
	if h.cfg.AllowRegistration {
		router.GET("/register", h.registerForm)
		router.POST("/register", h.register)
	}
	router.GET("/forgot-password", h.forgotPasswordForm)
	router.POST("/forgot-password", h.forgotPassword)
	router.GET("/reset-password", h.resetPasswordForm)
	router.POST("/reset-password", h.resetPassword)
	router.GET("/logout", h.logout)
	router.POST("/logout", h.logout)

	router.GET("/", h.RequireLogin(), h.home)

	api := router.Group("/api")
	{
		api.GET("/session", h.sessionState)
		api.GET("/access", h.access)
	}

	if h.admin != nil {
		h.registerAdminRoutes(router)
	}
}

type sessionResponse struct {
	LoggedIn bool     `json:"logged_in"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

func (h *Handler) sessionState(c *gin.Context) {
	if err := h.sessions.CheckExistingSession(c); err != nil {
		c.JSON(http.StatusOK, sessionResponse{Groups: []string{}})
		return
	}
	groups, err := h.sessions.Groups(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		LoggedIn: true,
		Username: h.sessions.Username(c),
		Groups:   lo.Ternary(groups == nil, []string{}, groups),
	})
}

func (h *Handler) access(c *gin.Context) {
	required := lo.Compact(lo.Map(strings.Split(c.Query("groups"), ","), func(g string, _ int) string {
		return strings.TrimSpace(g)
	}))
	allowed, err := h.sessions.CheckGroupAccess(c, required...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

// isAdmin reports whether the current session may see the admin screens.
func (h *Handler) isAdmin(c *gin.Context) bool {
	if h.admin == nil || c.GetString(usernameKey) == "" {
		return false
	}
	allowed, err := h.sessions.CheckGroupAccess(c, domain.AdminGroup)
	return err == nil && allowed
}
