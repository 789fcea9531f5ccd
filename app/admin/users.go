// Package admin exposes user management to staff accounts
package admin

import (
	"net/http"
	"strconv"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func parseBool(c *gin.Context, key string) (*bool, bool) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, true
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{key: []string{"Must be a valid boolean."}})
		return nil, false
	}

	return &b, true
}

func parseUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		respond.Detail(c, http.StatusNotFound, "Not found.")
		return uuid.Nil, false
	}

	return id, true
}

// ListUsers takes search, is_active, is_removed and page query parameters
func ListUsers(c *gin.Context, d *internal.Deps) {
	f := service.UserFilter{Search: c.Query("search")}

	var ok bool
	if f.IsActive, ok = parseBool(c, "is_active"); !ok {
		return
	}
	if f.IsRemoved, ok = parseBool(c, "is_removed"); !ok {
		return
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			respond.Detail(c, http.StatusNotFound, "Invalid page.")
			return
		}
		f.Page = page
	}

	page, err := d.Accounts.ListUsers(c.Request.Context(), f)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func GetUser(c *gin.Context, d *internal.Deps) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	u, err := d.Accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

type flagsBody struct {
	IsActive  *bool `json:"is_active"`
	IsRemoved *bool `json:"is_removed"`
}

func UpdateUser(c *gin.Context, d *internal.Deps) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	var data flagsBody
	if err := c.ShouldBindJSON(&data); err != nil {
		respond.BindError(c, err)
		return
	}

	u, err := d.Accounts.UpdateUserFlags(c.Request.Context(), id, service.UserFlags{
		IsActive:  data.IsActive,
		IsRemoved: data.IsRemoved,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// RemoveUser soft deletes, the row stays visible with is_removed set
func RemoveUser(c *gin.Context, d *internal.Deps) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	if err := d.Accounts.RemoveUser(c.Request.Context(), id); err != nil {
		respond.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
