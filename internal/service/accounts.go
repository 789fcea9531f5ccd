// Package service holds the account flows. Handlers translate HTTP into
// calls on Accounts and render whatever comes back.
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bitwise74/accounts-api/internal/metrics"
	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/internal/provider"
	"bitwise74/accounts-api/internal/throttle"
	"bitwise74/accounts-api/pkg/security"
	"bitwise74/accounts-api/pkg/util"
	"bitwise74/accounts-api/pkg/validators"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultConfirmationExpiry = 72 * time.Hour
	DefaultResetTimeout       = 24 * time.Hour
	DefaultMailCooldown       = 3 * time.Minute

	tokenBytes        = 20 // 40 hex characters
	confirmationBytes = 32
)

type Options struct {
	// BaseURL is prepended to links in outgoing mail, e.g. https://example.com
	BaseURL            string
	SecretKey          string
	ConfirmationExpiry time.Duration
	ResetTimeout       time.Duration
	MailCooldown       time.Duration
}

type Config struct {
	DB        *gorm.DB
	Argon     *security.ArgonHash
	Mailer    Mailer
	Throttle  throttle.Store
	Providers *provider.Registry
	Metrics   metrics.Recorder
	Options
}

type Accounts struct {
	db        *gorm.DB
	argon     *security.ArgonHash
	mailer    Mailer
	throttle  throttle.Store
	providers *provider.Registry
	metrics   metrics.Recorder
	reset     *security.ResetSigner
	opts      Options
	now       func() time.Time

	// compared against when the e-mail is unknown so a miss costs as much
	// as a wrong password
	dummyHash string
}

type LoginResult struct {
	Key  string
	User *model.User
}

func NewAccounts(c Config) (*Accounts, error) {
	if c.DB == nil {
		return nil, errors.New("no database provided")
	}

	if c.SecretKey == "" {
		return nil, errors.New("no secret key provided")
	}

	if c.Argon == nil {
		c.Argon = security.New()
	}
	if c.Mailer == nil {
		c.Mailer = ConsoleMailer{}
	}
	if c.Throttle == nil {
		c.Throttle = throttle.NewMemory()
	}
	if c.Providers == nil {
		c.Providers = provider.NewRegistry()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
	if c.ConfirmationExpiry <= 0 {
		c.ConfirmationExpiry = DefaultConfirmationExpiry
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.MailCooldown <= 0 {
		c.MailCooldown = DefaultMailCooldown
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	dummy, err := c.Argon.GenerateFromPassword("not a real password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash, %w", err)
	}

	a := &Accounts{
		db:        c.DB,
		argon:     c.Argon,
		mailer:    c.Mailer,
		throttle:  c.Throttle,
		providers: c.Providers,
		metrics:   c.Metrics,
		reset:     security.NewResetSigner(c.SecretKey, c.ResetTimeout),
		opts:      c.Options,
		dummyHash: dummy,
	}
	a.SetClock(func() time.Time { return time.Now().UTC() })

	return a, nil
}

// SetClock replaces the time source for every flow
func (a *Accounts) SetClock(now func() time.Time) {
	a.now = now
	a.reset.WithClock(now)
}

func (a *Accounts) Providers() *provider.Registry {
	return a.providers
}

// issueToken returns the user's token, creating it if there is none. Safe
// to race, the unique index on user_id decides the winner.
func (a *Accounts) issueToken(tx *gorm.DB, userID uint) (string, error) {
	key, err := util.GenerateToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate token, %w", err)
	}

	err = tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.AuthToken{Key: key, UserID: userID}).
		Error
	if err != nil {
		return "", fmt.Errorf("failed to create token, %w", err)
	}

	var t model.AuthToken
	if err := tx.Where("user_id = ?", userID).First(&t).Error; err != nil {
		return "", fmt.Errorf("failed to read token, %w", err)
	}

	return t.Key, nil
}

func (a *Accounts) link(path string) string {
	return a.opts.BaseURL + path
}

// checkPassword adds the policy violation for p under field, if any
func checkPassword(verr *ValidationError, field, p string) {
	switch err := validators.PasswordValidator(p); {
	case err == nil:
	case errors.Is(err, validators.ErrPasswordEmpty):
		verr.Add(field, MsgFieldRequired, ErrFieldRequired)
	case errors.Is(err, validators.ErrPasswordTooLong):
		verr.Add(field, MsgPasswordTooLong, ErrPasswordPolicy)
	default:
		verr.Add(field, MsgPasswordTooShort, ErrPasswordPolicy)
	}
}

// required adds "This field is required." for every empty value
func required(verr *ValidationError, fields ...[2]string) {
	for _, f := range fields {
		if f[1] == "" {
			verr.Add(f[0], MsgFieldRequired, ErrFieldRequired)
		}
	}
}
