// Package app wires every endpoint into a gin engine
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bitwise74/accounts-api/app/admin"
	"bitwise74/accounts-api/app/pages"
	"bitwise74/accounts-api/app/root"
	"bitwise74/accounts-api/app/user"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var store = persist.NewMemoryStore(time.Minute)

type Options struct {
	CORSOrigins []string
	// RateLimit is requests per second per client IP, 0 disables limiting
	RateLimit   int
	RateBurst   int
	MaxBodySize int64
	Turnstile   middleware.TurnstileConfig
	// ServeStatic mounts the embedded stylesheets under /static/
	ServeStatic bool
}

// NewRouter builds the engine. Background work started for it stops when
// ctx is cancelled.
func NewRouter(ctx context.Context, d *internal.Deps, o Options) (*gin.Engine, error) {
	tmpl, err := pages.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates, %w", err)
	}

	if o.MaxBodySize <= 0 {
		o.MaxBodySize = 1 << 20
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware())
	}

	// cors refuses an empty origin list, same-origin deployments skip it
	if len(o.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     o.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v, ok := c.Get("user"); ok {
					fields = append(fields, zap.String("user", v.(*model.User).UUID.String()))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	auth := middleware.NewTokenMiddleware(d.Accounts)
	staff := middleware.NewStaffMiddleware()
	turnstile := middleware.NewTurnstileMiddleware(o.Turnstile)

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if o.RateLimit > 0 {
		limit = middleware.RateLimiterMiddleware(ctx, middleware.RateLimiterConfig{
			RequestsPerSecond: o.RateLimit,
			Burst:             o.RateBurst,
		})
	}

	if d.Metrics != nil {
		// GET /metrics		-> Prometheus scrape endpoint
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	if o.ServeStatic {
		router.StaticFS("/static", http.FS(pages.Static()))
	}

	m := router.Group("/api", limit, middleware.BodySizeLimiter(o.MaxBodySize))
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", func(c *gin.Context) { root.Heartbeat(c, d) })
	}

	a := m.Group("/auth")
	{
		// POST /api/auth/login			-> Exchanges credentials for a token
		a.POST("/login", func(c *gin.Context) { user.Login(c, d) })

		// POST /api/auth/logout		-> Deletes the caller's token
		a.POST("/logout", auth, func(c *gin.Context) { user.Logout(c, d) })

		// POST /api/auth/registration		-> Registers a user and sends a confirmation e-mail
		a.POST("/registration", turnstile, func(c *gin.Context) { user.Register(c, d) })

		// POST /api/auth/registration/verify-email	-> Confirms an e-mail address by key
		a.POST("/registration/verify-email", func(c *gin.Context) { user.VerifyEmail(c, d) })

		// POST /api/auth/registration/resend-email	-> Sends a new confirmation e-mail
		a.POST("/registration/resend-email", turnstile, func(c *gin.Context) { user.ResendEmail(c, d) })

		// POST /api/auth/password/reset	-> Sends a password reset e-mail
		a.POST("/password/reset", turnstile, func(c *gin.Context) { user.PasswordReset(c, d) })

		// POST /api/auth/password/reset/confirm	-> Sets a new password from a reset link
		a.POST("/password/reset/confirm", func(c *gin.Context) { user.PasswordResetConfirm(c, d) })
		a.POST("/password/reset/confirm/:uid/:token", func(c *gin.Context) { user.PasswordResetConfirm(c, d) })

		// POST /api/auth/password/change	-> Changes the caller's password
		a.POST("/password/change", auth, func(c *gin.Context) { user.PasswordChange(c, d) })

		// GET /api/auth/user			-> Returns the caller's details
		a.GET("/user", auth, user.Details)

		// PUT|PATCH /api/auth/user		-> Updates the caller's name
		a.PUT("/user", auth, func(c *gin.Context) { user.UpdateDetails(c, d) })
		a.PATCH("/user", auth, func(c *gin.Context) { user.UpdateDetails(c, d) })

		for _, name := range d.Accounts.Providers().Names() {
			// POST /api/auth/:provider		-> Logs in with a provider access token
			a.POST("/"+name, func(c *gin.Context) { user.SocialLogin(c, d, name) })

			// POST /api/auth/:provider/connect	-> Links a provider account to the caller
			a.POST("/"+name+"/connect", auth, func(c *gin.Context) { user.SocialConnect(c, d, name) })
		}
	}

	adm := m.Group("/admin", auth, staff)
	{
		// GET /api/admin/users			-> Lists users, removed ones included
		adm.GET("/users", func(c *gin.Context) { admin.ListUsers(c, d) })

		// GET /api/admin/users/:uuid		-> Returns a single user
		adm.GET("/users/:uuid", func(c *gin.Context) { admin.GetUser(c, d) })

		// PATCH /api/admin/users/:uuid		-> Toggles is_active and is_removed
		adm.PATCH("/users/:uuid", func(c *gin.Context) { admin.UpdateUser(c, d) })

		// DELETE /api/admin/users/:uuid	-> Soft deletes a user
		adm.DELETE("/users/:uuid", func(c *gin.Context) { admin.RemoveUser(c, d) })
	}

	p := router.Group("/auth", limit)
	{
		// GET /auth/confirm-email/:key/	-> Confirms an e-mail address from the mailed link
		p.GET("/confirm-email/:key/", func(c *gin.Context) { pages.ConfirmEmail(c, d) })

		// GET /auth/email/activation/send/
		p.GET("/email/activation/send/", cacheFor(5*60), func(c *gin.Context) { pages.ActivationSent(c, d) })

		// GET /auth/email/activation/done/
		p.GET("/email/activation/done/", cacheFor(5*60), func(c *gin.Context) { pages.ActivationDone(c, d) })

		// GET|POST /auth/reset/:uid/:token/	-> Password reset form
		p.GET("/reset/:uid/:token/", func(c *gin.Context) { pages.ResetForm(c, d) })
		p.POST("/reset/:uid/:token/", middleware.BodySizeLimiter(o.MaxBodySize), func(c *gin.Context) { pages.ResetSubmit(c, d) })

		// GET /auth/reset/done/
		p.GET("/reset/done/", cacheFor(5*60), func(c *gin.Context) { pages.ResetDone(c, d) })
	}

	return router, nil
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
