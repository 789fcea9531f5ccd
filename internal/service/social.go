package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/internal/provider"
	"bitwise74/accounts-api/pkg/validators"

	"gorm.io/gorm"
)

func (a *Accounts) fetchIdentity(ctx context.Context, name, accessToken string) (*provider.Identity, error) {
	p, err := a.providers.Get(name)
	if err != nil {
		return nil, ErrNotFound
	}

	if accessToken == "" {
		return nil, invalid("access_token", MsgFieldRequired, ErrFieldRequired)
	}

	id, err := p.FetchIdentity(ctx, accessToken)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidProviderToken) {
			a.metrics.AuthEvent("social_"+name, "rejected")
			return nil, invalid(NonFieldErrors, MsgIncorrectValue, ErrInvalidProviderToken)
		}

		a.metrics.AuthEvent("social_"+name, "unavailable")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return id, nil
}

func (a *Accounts) findSocialAccount(db *gorm.DB, id *provider.Identity) (*model.SocialAccount, error) {
	var sa model.SocialAccount

	err := db.
		Where("provider = ? AND uid = ?", id.Provider, id.ProviderUserID).
		First(&sa).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to look up social account, %w", err)
	}

	return &sa, nil
}

// touchSocialAccount records a fresh login through the provider and returns
// the user's token.
func (a *Accounts) touchSocialAccount(tx *gorm.DB, sa *model.SocialAccount, u *model.User, id *provider.Identity) (string, error) {
	now := a.now()

	err := tx.Model(sa).Updates(map[string]any{
		"last_login": now,
		"extra_data": string(id.Extra),
	}).Error
	if err != nil {
		return "", fmt.Errorf("failed to update social account, %w", err)
	}

	if err := tx.Model(u).UpdateColumn("last_login", now).Error; err != nil {
		return "", fmt.Errorf("failed to update last login, %w", err)
	}
	u.LastLogin = &now

	return a.issueToken(tx, u.ID)
}

// LoginWithProvider logs in through an identity provider. A new identity
// gets a new, already verified account, unless its e-mail is taken. Such
// accounts are never merged silently, the owner has to log in and connect.
func (a *Accounts) LoginWithProvider(ctx context.Context, name, accessToken string) (*LoginResult, error) {
	id, err := a.fetchIdentity(ctx, name, accessToken)
	if err != nil {
		return nil, err
	}

	db := a.db.WithContext(ctx)
	event := "social_" + name

	sa, err := a.findSocialAccount(db, id)
	if err != nil {
		return nil, err
	}

	if sa != nil {
		var u model.User
		if err := db.First(&u, sa.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid(NonFieldErrors, MsgInactiveUser, ErrInactiveUser)
			}

			return nil, fmt.Errorf("failed to look up user, %w", err)
		}

		if !u.IsActive {
			a.metrics.AuthEvent(event, "inactive")
			return nil, invalid(NonFieldErrors, MsgInactiveUser, ErrInactiveUser)
		}

		var key string
		err = db.Transaction(func(tx *gorm.DB) error {
			key, err = a.touchSocialAccount(tx, sa, &u, id)
			return err
		})
		if err != nil {
			return nil, err
		}

		a.metrics.AuthEvent(event, "existing")
		return &LoginResult{Key: key, User: &u}, nil
	}

	if id.Email == "" {
		return nil, invalid("email", MsgMissingProviderEmail, ErrMissingProviderEmail)
	}

	email := validators.NormalizeEmail(id.Email)
	if err := validators.EmailValidator(email); err != nil {
		a.metrics.AuthEvent(event, "invalid_email")
		return nil, invalid("email", MsgInvalidEmail, ErrInvalidEmail)
	}

	taken, err := a.emailTaken(db, email)
	if err != nil {
		return nil, err
	}

	if taken {
		a.metrics.AuthEvent(event, "conflict")
		return nil, invalid(NonFieldErrors, MsgSocialEmailRegistered, ErrAccountExistsRequiresExplicitLink)
	}

	unusable, err := a.argon.Unusable()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password, %w", err)
	}

	u := model.User{
		Email:        email,
		Name:         truncate(id.Name, validators.NameMaxLength),
		PasswordHash: unusable,
	}

	var key string
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return socialConflict(err, "failed to create user")
		}

		addr := model.EmailAddress{
			UserID:   u.ID,
			Email:    email,
			Verified: true,
			Primary:  true,
		}

		if err := tx.Create(&addr).Error; err != nil {
			return socialConflict(err, "failed to create e-mail address")
		}

		sa := model.SocialAccount{
			UserID:    u.ID,
			Provider:  id.Provider,
			UID:       id.ProviderUserID,
			ExtraData: string(id.Extra),
			LastLogin: a.now(),
		}

		if err := tx.Create(&sa).Error; err != nil {
			return socialConflict(err, "failed to create social account")
		}

		now := a.now()
		if err := tx.Model(&u).UpdateColumn("last_login", now).Error; err != nil {
			return fmt.Errorf("failed to update last login, %w", err)
		}
		u.LastLogin = &now

		key, err = a.issueToken(tx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.metrics.AuthEvent(event, "created")
	return &LoginResult{Key: key, User: &u}, nil
}

func socialConflict(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return invalid(NonFieldErrors, MsgSocialEmailRegistered, ErrAccountExistsRequiresExplicitLink)
	}

	return fmt.Errorf("%s, %w", msg, err)
}

// ConnectWithProvider links a provider identity to an already logged in
// user. Connecting an identity that is already linked to the same user is
// a no-op.
func (a *Accounts) ConnectWithProvider(ctx context.Context, u *model.User, name, accessToken string) (*LoginResult, error) {
	id, err := a.fetchIdentity(ctx, name, accessToken)
	if err != nil {
		return nil, err
	}

	db := a.db.WithContext(ctx)
	event := "social_" + name + "_connect"

	sa, err := a.findSocialAccount(db, id)
	if err != nil {
		return nil, err
	}

	if sa != nil && sa.UserID != u.ID {
		a.metrics.AuthEvent(event, "conflict")
		return nil, invalid(NonFieldErrors, MsgAlreadyLinked, ErrAlreadyLinked)
	}

	var key string
	err = db.Transaction(func(tx *gorm.DB) error {
		if sa == nil {
			sa = &model.SocialAccount{
				UserID:    u.ID,
				Provider:  id.Provider,
				UID:       id.ProviderUserID,
				ExtraData: string(id.Extra),
				LastLogin: a.now(),
			}

			if err := tx.Create(sa).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return invalid(NonFieldErrors, MsgAlreadyLinked, ErrAlreadyLinked)
				}

				return fmt.Errorf("failed to create social account, %w", err)
			}
		}

		key, err = a.touchSocialAccount(tx, sa, u, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.metrics.AuthEvent(event, "linked")
	return &LoginResult{Key: key, User: u}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
