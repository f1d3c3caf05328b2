package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"modular-auth/internal/service"
)

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
	Next     string `form:"next"`
}

type registerForm struct {
	Name     string `form:"name"`
	Email    string `form:"email"`
	Username string `form:"username"`
	Password string `form:"password"`
}

type resetForm struct {
	Email             string `form:"email"`
	TemporaryPassword string `form:"temporary_password"`
	NewPassword       string `form:"new_password"`
	ConfirmPassword   string `form:"confirm_password"`
}

func (h *Handler) loginForm(c *gin.Context) {
	next := safeNext(c.Query("next"))
	if h.sessions.CheckExistingSession(c) == nil {
		c.Redirect(http.StatusFound, next)
		return
	}
	h.render(c, http.StatusOK, "login", h.cfg.LoginLabel, loginForm{Next: next})
}

func (h *Handler) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	form.Next = safeNext(form.Next)

	user, err := h.users.Authenticate(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		form.Password = ""
		h.formError(c, "login", h.cfg.LoginLabel, err, form)
		return
	}

	if err := h.sessions.Login(c, user); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.WithField("username", user.Username).Info("user logged in")
	h.redirect(c, form.Next, flashSuccess, "You're logged in!")
}

func (h *Handler) registerForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register", "Create Account", registerForm{})
}

func (h *Handler) register(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	_, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Name:     form.Name,
		Email:    form.Email,
		Username: form.Username,
		Password: form.Password,
	})
	if err != nil {
		h.formError(c, "register", "Create Account", err, registerForm{Name: form.Name, Email: form.Email, Username: form.Username})
		return
	}
	h.redirect(c, "/login", flashSuccess, "Registration Successful!")
}

func (h *Handler) forgotPasswordForm(c *gin.Context) {
	h.render(c, http.StatusOK, "forgot_password", "Forgot Password", nil)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if err := h.users.ForgotPassword(c.Request.Context(), email); err != nil {
		h.formError(c, "forgot_password", "Forgot Password", err, nil)
		return
	}
	h.redirect(c, "/reset-password?email="+url.QueryEscape(email), flashSuccess, "Secure Password Sent Successfully!")
}

func (h *Handler) resetPasswordForm(c *gin.Context) {
	h.render(c, http.StatusOK, "reset_password", "Reset Password", resetForm{Email: c.Query("email")})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var form resetForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	err := h.users.ResetPassword(c.Request.Context(), service.ResetInput{
		Email:             form.Email,
		TemporaryPassword: form.TemporaryPassword,
		NewPassword:       form.NewPassword,
		ConfirmPassword:   form.ConfirmPassword,
	})
	if err != nil {
		h.formError(c, "reset_password", "Reset Password", err, resetForm{Email: form.Email})
		return
	}
	h.redirect(c, "/login", flashSuccess, "Password Reset Successfully!")
}

func (h *Handler) logout(c *gin.Context) {
	username := h.sessions.Username(c)
	if err := h.sessions.Logout(c); err != nil {
		h.fail(c, err)
		return
	}
	if username != "" {
		h.logger.WithField("username", username).Info("user logged out")
	}
	h.redirect(c, "/login", flashInfo, "Logged out.")
}

func (h *Handler) home(c *gin.Context) {
	groups, err := h.sessions.Groups(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "home", h.cfg.AppName, gin.H{"Groups": groups})
}

// formError re-renders a form with the error message, or the error page for
// failures the user cannot fix.
func (h *Handler) formError(c *gin.Context, name, title string, err error, data any) {
	status, message := humanError(err)
	if status >= http.StatusInternalServerError {
		h.fail(c, err)
		return
	}
	h.renderWith(c, status, name, title, data, flash{Level: flashError, Message: message})
}
