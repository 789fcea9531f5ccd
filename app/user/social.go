package user

import (
	"net/http"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"

	"github.com/gin-gonic/gin"
)

type socialBody struct {
	AccessToken string `json:"access_token" form:"access_token"`
}

func SocialLogin(c *gin.Context, d *internal.Deps, provider string) {
	var data socialBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	res, err := d.Accounts.LoginWithProvider(c.Request.Context(), provider, data.AccessToken)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Key:  res.Key,
		User: detailsOf(res.User),
	})
}

func SocialConnect(c *gin.Context, d *internal.Deps, provider string) {
	var data socialBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	res, err := d.Accounts.ConnectWithProvider(c.Request.Context(), currentUser(c), provider, data.AccessToken)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Key:  res.Key,
		User: detailsOf(res.User),
	})
}
