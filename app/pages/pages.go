// Package pages renders the HTML pages that e-mail links point at
package pages

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ActivationDonePath = "/auth/email/activation/done/"
	ResetDonePath      = "/auth/reset/done/"

	msgActivationSent = "Thank you for your registration. An email with an activation link has been send."
	msgActivationDone = "Thank you for your email confirmation. You can now use your account."
	msgResetInvalid   = "The password reset link was invalid, possibly because it has already been used. " +
		"Please request a new password reset."
	msgResetComplete = "Your password has been set. You may go ahead and log in now."
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// Static holds the stylesheets, rooted so paths start at css/
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	return sub
}

type page struct {
	Title     string
	Message   string
	StaticURL string
	Action    string
	Errors    map[string][]string
}

func message(c *gin.Context, d *internal.Deps, status int, title, msg string) {
	c.HTML(status, "message.html", page{
		Title:     title,
		Message:   msg,
		StaticURL: d.StaticURL,
	})
}

func serverError(c *gin.Context, d *internal.Deps, err error) {
	zap.L().Error("Page failed", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
	message(c, d, http.StatusInternalServerError, "Server Error", "Something went wrong, please try again later.")
}

func ConfirmEmail(c *gin.Context, d *internal.Deps) {
	err := d.Accounts.Confirm(c.Request.Context(), c.Param("key"))
	if err == nil {
		c.Redirect(http.StatusFound, ActivationDonePath)
		return
	}

	if errors.Is(err, service.ErrInvalidOrExpiredKey) {
		message(c, d, http.StatusOK, "Confirm E-mail Address", service.MsgInvalidKey)
		return
	}

	serverError(c, d, err)
}

func ActivationSent(c *gin.Context, d *internal.Deps) {
	message(c, d, http.StatusOK, "Verify Your E-mail Address", msgActivationSent)
}

func ActivationDone(c *gin.Context, d *internal.Deps) {
	message(c, d, http.StatusOK, "E-mail Address Confirmed", msgActivationDone)
}

func resetForm(c *gin.Context, d *internal.Deps, errs map[string][]string) {
	c.HTML(http.StatusOK, "reset_form.html", page{
		Title:     "Enter new password",
		StaticURL: d.StaticURL,
		Action:    c.Request.URL.Path,
		Errors:    errs,
	})
}

func resetInvalid(c *gin.Context, d *internal.Deps) {
	message(c, d, http.StatusOK, "Password reset unsuccessful", msgResetInvalid)
}

// ResetForm shows the form only while the link is still valid
func ResetForm(c *gin.Context, d *internal.Deps) {
	_, err := d.Accounts.CheckReset(c.Request.Context(), c.Param("uid"), c.Param("token"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredKey) {
			resetInvalid(c, d)
			return
		}

		serverError(c, d, err)
		return
	}

	resetForm(c, d, nil)
}

func ResetSubmit(c *gin.Context, d *internal.Deps) {
	err := d.Accounts.ConfirmReset(
		c.Request.Context(),
		c.Param("uid"),
		c.Param("token"),
		c.PostForm("new_password1"),
		c.PostForm("new_password2"),
	)
	if err == nil {
		c.Redirect(http.StatusFound, ResetDonePath)
		return
	}

	if errors.Is(err, service.ErrInvalidOrExpiredKey) {
		resetInvalid(c, d)
		return
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resetForm(c, d, verr.Fields)
		return
	}

	serverError(c, d, err)
}

func ResetDone(c *gin.Context, d *internal.Deps) {
	message(c, d, http.StatusOK, "Password reset complete", msgResetComplete)
}
