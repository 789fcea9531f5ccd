package user

import (
	"errors"
	"net/http"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
)

type registerBody struct {
	Email     string `json:"email" form:"email"`
	Password1 string `json:"password1" form:"password1"`
	Password2 string `json:"password2" form:"password2"`
}

func Register(c *gin.Context, d *internal.Deps) {
	var data registerBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	err := d.Accounts.Register(c.Request.Context(), data.Email, data.Password1, data.Password2)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusCreated, service.MsgVerificationSent)
}

type verifyBody struct {
	Key string `json:"key" form:"key"`
}

func VerifyEmail(c *gin.Context, d *internal.Deps) {
	var data verifyBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	if data.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"key": []string{service.MsgFieldRequired}})
		return
	}

	if err := d.Accounts.Confirm(c.Request.Context(), data.Key); err != nil {
		// an unknown key is a bad field value here, the html page renders it instead
		if errors.Is(err, service.ErrInvalidOrExpiredKey) {
			c.JSON(http.StatusBadRequest, gin.H{"key": []string{service.MsgInvalidValue}})
			return
		}

		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, "ok")
}

type resendBody struct {
	Email string `json:"email" form:"email"`
}

func ResendEmail(c *gin.Context, d *internal.Deps) {
	var data resendBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	if err := d.Accounts.ResendConfirmation(c.Request.Context(), data.Email); err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, "ok")
}
