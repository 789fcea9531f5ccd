package user

import (
	"net/http"

	"bitwise74/accounts-api/app/respond"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
)

type resetBody struct {
	Email string `json:"email" form:"email"`
}

func PasswordReset(c *gin.Context, d *internal.Deps) {
	var data resetBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	if err := d.Accounts.RequestReset(c.Request.Context(), data.Email); err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, service.MsgResetSent)
}

type resetConfirmBody struct {
	UID          string `json:"uid" form:"uid"`
	Token        string `json:"token" form:"token"`
	NewPassword1 string `json:"new_password1" form:"new_password1"`
	NewPassword2 string `json:"new_password2" form:"new_password2"`
}

// PasswordResetConfirm takes uid and token from the path, falling back to
// the body for clients that post them there.
func PasswordResetConfirm(c *gin.Context, d *internal.Deps) {
	var data resetConfirmBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	if uid := c.Param("uid"); uid != "" {
		data.UID = uid
	}
	if token := c.Param("token"); token != "" {
		data.Token = token
	}

	err := d.Accounts.ConfirmReset(c.Request.Context(), data.UID, data.Token, data.NewPassword1, data.NewPassword2)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, service.MsgResetDone)
}

type changeBody struct {
	OldPassword  string `json:"old_password" form:"old_password"`
	NewPassword1 string `json:"new_password1" form:"new_password1"`
	NewPassword2 string `json:"new_password2" form:"new_password2"`
}

func PasswordChange(c *gin.Context, d *internal.Deps) {
	var data changeBody
	if err := bind(c, &data); err != nil {
		respond.BindError(c, err)
		return
	}

	err := d.Accounts.ChangePassword(c.Request.Context(), currentUser(c), data.OldPassword, data.NewPassword1, data.NewPassword2)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.Detail(c, http.StatusOK, service.MsgPasswordChanged)
}
