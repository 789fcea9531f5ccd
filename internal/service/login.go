package service

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Authenticate checks an e-mail and password pair and hands out the user's
// token. Unknown e-mail, wrong password, inactive and removed accounts all
// fail the same way.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*LoginResult, error) {
	verr := NewValidationError()
	required(verr, [2]string{"email", email}, [2]string{"password", password})
	if err := verr.Err(); err != nil {
		return nil, err
	}

	db := a.db.WithContext(ctx)
	badCredentials := invalid(NonFieldErrors, MsgInvalidCredentials, ErrInvalidCredentials)

	var u model.User
	err := db.Where("email = ?", validators.NormalizeEmail(email)).First(&u).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to look up user, %w", err)
		}

		a.argon.VerifyPasswd(password, a.dummyHash)
		a.metrics.AuthEvent("login", "invalid_credentials")
		return nil, badCredentials
	}

	ok, err := a.argon.VerifyPasswd(password, u.PasswordHash)
	if err != nil {
		zap.L().Warn("Stored password hash is malformed", zap.String("user", u.UUID.String()), zap.Error(err))
	}

	if !ok || !u.IsActive {
		a.metrics.AuthEvent("login", "invalid_credentials")
		return nil, badCredentials
	}

	verified, err := a.primaryVerified(db, u.ID)
	if err != nil {
		return nil, err
	}

	if !verified {
		a.metrics.AuthEvent("login", "unverified")
		return nil, invalid(NonFieldErrors, MsgEmailNotVerified, ErrEmailNotVerified)
	}

	var key string
	err = db.Transaction(func(tx *gorm.DB) error {
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

	a.metrics.AuthEvent("login", "success")
	return &LoginResult{Key: key, User: &u}, nil
}

func (a *Accounts) primaryVerified(db *gorm.DB, userID uint) (bool, error) {
	var addr model.EmailAddress

	err := db.
		Where("user_id = ? AND is_primary = ?", userID, true).
		First(&addr).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to look up primary e-mail, %w", err)
	}

	return addr.Verified, nil
}

// Logout deletes the token. Deleting a token that is already gone is not an
// error.
func (a *Accounts) Logout(ctx context.Context, key string) error {
	if key == "" {
		return ErrUnauthenticated
	}

	err := a.db.WithContext(ctx).
		Where(&model.AuthToken{Key: key}).
		Delete(&model.AuthToken{}).
		Error
	if err != nil {
		return fmt.Errorf("failed to delete token, %w", err)
	}

	a.metrics.AuthEvent("logout", "success")
	return nil
}

// UserForToken resolves a bearer token to an active, non removed user
func (a *Accounts) UserForToken(ctx context.Context, key string) (*model.User, error) {
	if key == "" {
		return nil, ErrInvalidToken
	}

	db := a.db.WithContext(ctx)

	var t model.AuthToken
	if err := db.Where(&model.AuthToken{Key: key}).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}

		return nil, fmt.Errorf("failed to look up token, %w", err)
	}

	var u model.User
	if err := db.First(&u, t.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}

		return nil, fmt.Errorf("failed to look up token owner, %w", err)
	}

	if !u.IsActive {
		return nil, ErrInvalidToken
	}

	return &u, nil
}
