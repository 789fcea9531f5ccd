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

// Register creates an unverified account and mails a confirmation link. If
// the mail can't be delivered nothing is kept.
func (a *Accounts) Register(ctx context.Context, email, password1, password2 string) error {
	verr := NewValidationError()
	required(verr,
		[2]string{"email", email},
		[2]string{"password1", password1},
		[2]string{"password2", password2},
	)
	if err := verr.Err(); err != nil {
		return err
	}

	db := a.db.WithContext(ctx)
	email = validators.NormalizeEmail(email)

	if err := validators.EmailValidator(email); err != nil {
		verr.Add("email", MsgInvalidEmail, ErrInvalidEmail)
	} else {
		taken, err := a.emailTaken(db, email)
		if err != nil {
			return err
		}

		if taken {
			verr.Add("email", MsgEmailRegistered, ErrEmailAlreadyRegistered)
		}
	}

	checkPassword(verr, "password1", password1)

	if err := verr.Err(); err != nil {
		a.metrics.AuthEvent("register", "invalid")
		return err
	}

	if password1 != password2 {
		a.metrics.AuthEvent("register", "invalid")
		return invalid(NonFieldErrors, MsgPasswordMismatch, ErrPasswordMismatch)
	}

	hash, err := a.argon.GenerateFromPassword(password1)
	if err != nil {
		return fmt.Errorf("failed to hash password, %w", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		u := model.User{
			Email:        email,
			PasswordHash: hash,
		}

		if err := tx.Create(&u).Error; err != nil {
			return registrationConflict(err, "failed to create user")
		}

		addr := model.EmailAddress{
			UserID:  u.ID,
			Email:   email,
			Primary: true,
		}

		if err := tx.Create(&addr).Error; err != nil {
			return registrationConflict(err, "failed to create e-mail address")
		}

		return a.sendConfirmation(ctx, tx, &addr)
	})
	if err != nil {
		if errors.Is(err, ErrEmailDeliveryFailed) {
			a.metrics.AuthEvent("register", "mail_failed")
		}

		return err
	}

	a.metrics.AuthEvent("register", "success")
	return nil
}

// registrationConflict turns a unique index violation from a concurrent
// registration into the same error the pre-check gives.
func registrationConflict(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return invalid("email", MsgEmailRegistered, ErrEmailAlreadyRegistered)
	}

	return fmt.Errorf("%s, %w", msg, err)
}

// emailTaken looks at removed users too, their addresses stay reserved
func (a *Accounts) emailTaken(db *gorm.DB, email string) (bool, error) {
	var n int64

	err := db.Unscoped().
		Model(&model.User{}).
		Where("email = ?", email).
		Count(&n).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check if user is registered, %w", err)
	}

	if n > 0 {
		return true, nil
	}

	err = db.Model(&model.EmailAddress{}).
		Where("email = ?", email).
		Count(&n).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check if e-mail is in use, %w", err)
	}

	return n > 0, nil
}

// sendConfirmation stores a fresh key for addr and mails it. Returns
// ErrEmailDeliveryFailed when the mailer fails so the caller's transaction
// is rolled back.
func (a *Accounts) sendConfirmation(ctx context.Context, tx *gorm.DB, addr *model.EmailAddress) error {
	key, err := util.GenerateToken(confirmationBytes)
	if err != nil {
		return fmt.Errorf("failed to generate confirmation key, %w", err)
	}

	now := a.now()

	c := model.EmailConfirmation{
		EmailAddressID: addr.ID,
		KeyHash:        util.HashToken(key),
		SentAt:         now,
		ExpiresAt:      now.Add(a.opts.ConfirmationExpiry),
	}

	if err := tx.Create(&c).Error; err != nil {
		return fmt.Errorf("failed to store confirmation, %w", err)
	}

	link := a.link("/auth/confirm-email/" + key + "/")

	err = a.mailer.Send(ctx, confirmationMail(addr.Email, link))
	a.metrics.MailSent("confirmation", err)
	if err != nil {
		zap.L().Error("Failed to send confirmation mail", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEmailDeliveryFailed, err)
	}

	return nil
}
