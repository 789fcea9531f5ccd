// Package user contains the JSON endpoints of the account API
package user

import (
	"bitwise74/accounts-api/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type userDetails struct {
	Name string    `json:"name"`
	UUID uuid.UUID `json:"uuid"`
}

func detailsOf(u *model.User) userDetails {
	return userDetails{Name: u.Name, UUID: u.UUID}
}

type tokenResponse struct {
	Key  string      `json:"key"`
	User userDetails `json:"user"`
}

// currentUser is only valid behind the token middleware
func currentUser(c *gin.Context) *model.User {
	return c.MustGet("user").(*model.User)
}

// bind accepts JSON and form bodies. An empty body binds to the zero value.
func bind(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}

	return c.ShouldBind(dst)
}
