package service

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/util"
	"bitwise74/accounts-api/pkg/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Confirm consumes a confirmation key and marks its address verified. A key
// works exactly once, concurrent calls with the same key have one winner.
func (a *Accounts) Confirm(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidOrExpiredKey
	}

	hash := util.HashToken(key)

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.EmailConfirmation
		if err := tx.Where("key_hash = ?", hash).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidOrExpiredKey
			}

			return fmt.Errorf("failed to look up confirmation, %w", err)
		}

		now := a.now()

		res := tx.Model(&model.EmailConfirmation{}).
			Where("id = ? AND used_at IS NULL AND expires_at > ?", c.ID, now).
			Update("used_at", now)
		if res.Error != nil {
			return fmt.Errorf("failed to consume confirmation, %w", res.Error)
		}

		if res.RowsAffected != 1 {
			return ErrInvalidOrExpiredKey
		}

		res = tx.Model(&model.EmailAddress{}).
			Where("id = ? AND verified = ?", c.EmailAddressID, false).
			Update("verified", true)
		if res.Error != nil {
			return fmt.Errorf("failed to verify e-mail address, %w", res.Error)
		}

		if res.RowsAffected != 1 {
			return ErrInvalidOrExpiredKey
		}

		return nil
	})

	outcome := "success"
	if err != nil {
		outcome = "invalid"
	}
	a.metrics.AuthEvent("confirm", outcome)

	return err
}

// ResendConfirmation mails a new key to an unverified address. The result
// doesn't depend on whether the address exists.
func (a *Accounts) ResendConfirmation(ctx context.Context, email string) error {
	if email == "" {
		return invalid("email", MsgFieldRequired, ErrFieldRequired)
	}

	email = validators.NormalizeEmail(email)
	if err := validators.EmailValidator(email); err != nil {
		return invalid("email", MsgInvalidEmail, ErrInvalidEmail)
	}

	db := a.db.WithContext(ctx)

	var addr model.EmailAddress
	if err := db.Where("email = ?", email).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return fmt.Errorf("failed to look up e-mail address, %w", err)
	}

	if addr.Verified {
		return nil
	}

	var u model.User
	if err := db.First(&u, addr.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return fmt.Errorf("failed to look up user, %w", err)
	}

	free, err := a.throttle.Acquire(ctx, "confirm:"+email, a.opts.MailCooldown)
	if err != nil {
		return err
	}

	if !free {
		return nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return a.sendConfirmation(ctx, tx, &addr)
	})
	if err != nil {
		if errors.Is(err, ErrEmailDeliveryFailed) {
			zap.L().Warn("Confirmation resend was not delivered", zap.Error(err))
			return nil
		}

		return err
	}

	a.metrics.AuthEvent("resend_confirmation", "sent")
	return nil
}
