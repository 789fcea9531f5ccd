package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"bitwise74/accounts-api/app"
	"bitwise74/accounts-api/app/pages"
	"bitwise74/accounts-api/config"
	"bitwise74/accounts-api/db"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/metrics"
	"bitwise74/accounts-api/internal/provider"
	"bitwise74/accounts-api/internal/service"
	"bitwise74/accounts-api/internal/throttle"
	"bitwise74/accounts-api/pkg/middleware"
	"bitwise74/accounts-api/pkg/security"
	"bitwise74/accounts-api/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const usage = `Usage: accounts-api [serve|cleanup|collectstatic|createsuperuser] [flags]`

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}

		zap.L().Error("Command failed", zap.Error(err))
		zap.L().Sync()
		os.Exit(1)
	}
}

var errUsage = errors.New("unknown command")

// run executes one subcommand. Everything it opens is closed before it
// returns, errors included.
func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fs.PrintDefaults()
	}
	config.Flags(fs)

	var email, password, name string
	if cmd == "createsuperuser" {
		fs.StringVar(&email, "email", "", "E-mail address of the new superuser")
		fs.StringVar(&password, "password", "", "Password of the new superuser")
		fs.StringVar(&name, "name", "", "Display name of the new superuser")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	if err := config.Setup(fs); err != nil {
		return err
	}

	if err := app.MakeLogger(viper.GetString("app.log_level")); err != nil {
		return err
	}
	defer zap.L().Sync()

	var err error
	switch cmd {
	case "serve":
		err = serve(ctx)
	case "cleanup":
		err = cleanup(ctx)
	case "collectstatic":
		err = collectStatic(ctx)
	case "createsuperuser":
		err = createSuperuser(ctx, email, password, name)
	default:
		return fmt.Errorf("%w %q", errUsage, cmd)
	}

	if err != nil {
		return fmt.Errorf("%s failed, %w", cmd, err)
	}

	return nil
}

// newDeps opens everything the account flows need. close releases the
// connections that outlive a request.
func newDeps(ctx context.Context) (d *internal.Deps, close func(), err error) {
	conn, err := db.New(db.Options{
		Driver: viper.GetString("database.driver"),
		DSN:    viper.GetString("database.dsn"),
		Debug:  viper.GetBool("app.debug"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	closers := []func(){}
	if sqlDB, err := conn.DB(); err == nil {
		closers = append(closers, func() { sqlDB.Close() })
	}

	close = func() {
		for _, c := range closers {
			c()
		}
	}

	var mailer service.Mailer = service.ConsoleMailer{}
	if viper.GetString("mail.backend") == "smtp" {
		mailer = service.NewSMTPMailer(
			viper.GetString("mail.host"),
			viper.GetInt("mail.port"),
			viper.GetString("mail.username"),
			viper.GetString("mail.password"),
			viper.GetString("mail.from"),
		)
	}

	var store throttle.Store = throttle.NewMemory()
	if viper.GetString("cache.type") == "redis" {
		r, err := throttle.NewRedis(
			viper.GetString("cache.redis_addr"),
			viper.GetString("cache.redis_password"),
			viper.GetInt("cache.redis_db"),
		)
		if err != nil {
			close()
			return nil, nil, err
		}

		store = r
		closers = append(closers, func() { r.Close() })
	}

	var providers []provider.IdentityProvider

	if viper.GetString("social.facebook.client_id") != "" {
		fb, err := provider.NewFacebook(
			viper.GetString("social.facebook.client_secret"),
			viper.GetString("social.facebook.graph_url"),
		)
		if err != nil {
			close()
			return nil, nil, err
		}

		providers = append(providers, fb)
	}

	if viper.GetString("social.google.client_id") != "" {
		g, err := provider.NewGoogle(ctx, viper.GetString("social.google.issuer"))
		if err != nil {
			close()
			return nil, nil, err
		}

		providers = append(providers, g)
	}

	d = &internal.Deps{DB: conn, StaticURL: "/static/"}

	cfg := service.Config{
		DB:        conn,
		Argon:     security.New(),
		Mailer:    mailer,
		Throttle:  store,
		Providers: provider.NewRegistry(providers...),
		Options: service.Options{
			BaseURL:            viper.GetString("app.base_url"),
			SecretKey:          viper.GetString("security.secret_key"),
			ConfirmationExpiry: viper.GetDuration("accounts.confirmation_expiry"),
			ResetTimeout:       viper.GetDuration("accounts.reset_timeout"),
			MailCooldown:       viper.GetDuration("accounts.mail_cooldown"),
		},
	}

	if viper.GetBool("metrics.enabled") {
		d.Metrics = metrics.NewCollector()
		cfg.Metrics = d.Metrics
	}

	d.Accounts, err = service.NewAccounts(cfg)
	if err != nil {
		close()
		return nil, nil, err
	}

	return d, close, nil
}

func newStorage(ctx context.Context) (*storage.S3, error) {
	return storage.NewS3(ctx, storage.Config{
		Bucket:          viper.GetString("storage.bucket"),
		Region:          viper.GetString("storage.region"),
		Endpoint:        viper.GetString("storage.endpoint"),
		AccessKeyID:     viper.GetString("storage.access_key_id"),
		SecretAccessKey: viper.GetString("storage.secret_access_key"),
	})
}

// splitList accepts both toml arrays and comma separated env values
func splitList(in []string) []string {
	out := []string{}
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

func serve(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	// stops the router's background work once the listener returns
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d, close, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer close()

	serveStatic := viper.GetString("storage.type") == "local"
	if !serveStatic {
		s3, err := newStorage(ctx)
		if err != nil {
			return err
		}

		d.StaticURL = s3.PublicURL(viper.GetString("storage.location"))
	}

	router, err := app.NewRouter(ctx, d, app.Options{
		CORSOrigins: splitList(viper.GetStringSlice("host.cors_origins")),
		RateLimit:   viper.GetInt("security.rate_limit"),
		RateBurst:   viper.GetInt("security.rate_burst"),
		MaxBodySize: viper.GetInt64("host.max_body_size"),
		Turnstile: middleware.TurnstileConfig{
			Enabled: viper.GetBool("turnstile.enabled"),
			Secret:  viper.GetString("turnstile.secret_token"),
		},
		ServeStatic: serveStatic,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("host.port"))
	zap.L().Info("Server starting", zap.String("addr", addr), zap.Strings("providers", d.Accounts.Providers().Names()))

	if viper.GetBool("host.ssl.enabled") {
		return router.RunTLS(addr,
			viper.GetString("host.ssl.certificate_path"),
			viper.GetString("host.ssl.certificate_key_path"),
		)
	}

	return router.Run(addr)
}

func cleanup(ctx context.Context) error {
	d, close, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer close()

	n, err := d.Accounts.CleanupConfirmations(ctx)
	if err != nil {
		return err
	}

	zap.L().Info("Removed stale e-mail confirmations", zap.Int64("count", n))
	return nil
}

func collectStatic(ctx context.Context) error {
	if viper.GetString("storage.type") != "s3" {
		return errors.New("collectstatic needs storage.type set to s3")
	}

	s3, err := newStorage(ctx)
	if err != nil {
		return err
	}

	n, err := s3.Publish(ctx, pages.Static(), viper.GetString("storage.location"))
	if err != nil {
		return err
	}

	zap.L().Info("Static files published", zap.Int("count", n), zap.String("url", s3.PublicURL(viper.GetString("storage.location"))))
	return nil
}

func createSuperuser(ctx context.Context, email, password, name string) error {
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	d, close, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer close()

	u, err := d.Accounts.CreateSuperuser(ctx, email, password, name)
	if err != nil {
		return err
	}

	zap.L().Info("Superuser created", zap.String("email", u.Email), zap.String("uuid", u.UUID.String()))
	return nil
}
