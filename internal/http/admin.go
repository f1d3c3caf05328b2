package http

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"modular-auth/internal/domain"
	"modular-auth/internal/service"
)

func (h *Handler) registerAdminRoutes(router *gin.Engine) {
	admin := router.Group("/admin", h.RequireLogin(), h.RequireGroups(domain.AdminGroup))
	{
		admin.GET("", func(c *gin.Context) { c.Redirect(http.StatusFound, "/admin/users") })
		admin.GET("/users", h.adminListUsers)
		admin.GET("/users/new", h.adminNewUser)
		admin.POST("/users", h.adminCreateUser)
		admin.GET("/users/:username", h.adminShowUser)
		admin.POST("/users/:username", h.adminUpdateUser)
		admin.POST("/users/:username/active", h.adminToggleUserActive)
		admin.POST("/users/:username/groups", h.adminToggleUserGroup)
		admin.GET("/groups", h.adminListGroups)
		admin.POST("/groups", h.adminCreateGroup)
		admin.POST("/groups/:name/active", h.adminToggleGroupActive)
	}
}

type userForm struct {
	Username string   `form:"username"`
	Name     string   `form:"name"`
	Email    string   `form:"email"`
	Password string   `form:"password"`
	Active   bool     `form:"active"`
	Groups   []string `form:"groups"`
}

// userPage feeds the new/edit user template.
type userPage struct {
	New    bool
	User   domain.User
	Groups []domain.Group
}

func userPath(username string) string {
	return "/admin/users/" + url.PathEscape(username)
}

func (h *Handler) adminListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "admin_users", "Users", users)
}

func (h *Handler) adminNewUser(c *gin.Context) {
	groups, err := h.admin.ListGroups(c.Request.Context(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "admin_user", "New User", userPage{New: true, User: domain.User{Active: true}, Groups: groups})
}

func (h *Handler) adminCreateUser(c *gin.Context) {
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.admin.CreateUser(c.Request.Context(), service.CreateUserInput{
		Username: form.Username,
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Active:   form.Active,
		Groups:   form.Groups,
	}, c.GetString(usernameKey))
	if err != nil {
		groups, _ := h.admin.ListGroups(c.Request.Context(), false)
		h.formError(c, "admin_user", "New User", err, userPage{
			New:    true,
			User:   domain.User{Username: form.Username, Name: form.Name, Email: form.Email, Active: form.Active, Groups: form.Groups},
			Groups: groups,
		})
		return
	}
	h.redirect(c, userPath(user.Username), flashSuccess, fmt.Sprintf("User %s created.", user.Username))
}

func (h *Handler) adminShowUser(c *gin.Context) {
	user, err := h.admin.GetUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	groups, err := h.admin.ListGroups(c.Request.Context(), false)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "admin_user", user.Username, userPage{User: *user, Groups: groups})
}

func (h *Handler) adminUpdateUser(c *gin.Context) {
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	username := c.Param("username")

	_, err := h.admin.UpdateUser(c.Request.Context(), service.UpdateUserInput{
		Username: username,
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Active:   form.Active,
	}, c.GetString(usernameKey))
	if err != nil {
		status, message := humanError(err)
		if status >= http.StatusInternalServerError {
			h.fail(c, err)
			return
		}
		h.redirect(c, userPath(username), flashError, message)
		return
	}
	h.redirect(c, userPath(username), flashSuccess, "User updated.")
}

func (h *Handler) adminToggleUserActive(c *gin.Context) {
	username := c.Param("username")
	active, err := h.admin.ToggleUserActive(c.Request.Context(), username, c.GetString(usernameKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	h.redirect(c, "/admin/users", flashSuccess, fmt.Sprintf("User %s %s.", username, state))
}

func (h *Handler) adminToggleUserGroup(c *gin.Context) {
	username := c.Param("username")
	group := c.PostForm("group")
	if group == "" {
		h.redirect(c, userPath(username), flashError, "Group required")
		return
	}
	member, err := h.admin.ToggleUserGroup(c.Request.Context(), username, group)
	if err != nil {
		h.fail(c, err)
		return
	}
	message := fmt.Sprintf("Revoked %s from %s.", group, username)
	if member {
		message = fmt.Sprintf("Granted %s to %s.", group, username)
	}
	h.redirect(c, userPath(username), flashSuccess, message)
}

func (h *Handler) adminListGroups(c *gin.Context) {
	showAll := c.Query("all") == "1"
	groups, err := h.admin.ListGroups(c.Request.Context(), showAll)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "admin_groups", "Groups", gin.H{"Groups": groups, "ShowAll": showAll})
}

func (h *Handler) adminCreateGroup(c *gin.Context) {
	group, err := h.admin.CreateGroup(c.Request.Context(), c.PostForm("name"), c.GetString(usernameKey))
	if err != nil {
		status, message := humanError(err)
		if status >= http.StatusInternalServerError {
			h.fail(c, err)
			return
		}
		h.redirect(c, "/admin/groups", flashError, message)
		return
	}
	h.redirect(c, "/admin/groups", flashSuccess, fmt.Sprintf("Group %s created.", group.Name))
}

func (h *Handler) adminToggleGroupActive(c *gin.Context) {
	name := c.Param("name")
	active, err := h.admin.ToggleGroupActive(c.Request.Context(), name, c.GetString(usernameKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	h.redirect(c, "/admin/groups?all=1", flashSuccess, fmt.Sprintf("Group %s %s.", name, state))
}
