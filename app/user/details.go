package user

import (
	"net/http"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"

	"github.com/gin-gonic/gin"
)

func Details(c *gin.Context) {
	c.JSON(http.StatusOK, detailsOf(currentUser(c)))
}

type detailsBody struct {
	Name *string `json:"name" form:"name"`
}

// UpdateDetails serves both PUT and PATCH, uuid is read only and ignored
func UpdateDetails(c *gin.Context, d *internal.Deps) {
	var data detailsBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	u := currentUser(c)

	if err := d.Accounts.UpdateProfile(c.Request.Context(), u, data.Name); err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, detailsOf(u))
}
