package user

import (
	"net/http"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
)

type loginBody struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func Login(c *gin.Context, d *internal.Deps) {
	var data loginBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	res, err := d.Accounts.Authenticate(c.Request.Context(), data.Email, data.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Key:  res.Key,
		User: detailsOf(res.User),
	})
}

func Logout(c *gin.Context, d *internal.Deps) {
	if err := d.Accounts.Logout(c.Request.Context(), c.GetString("authToken")); err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, service.MsgLoggedOut)
}
