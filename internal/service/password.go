package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/security"
	"bitwise74/accounts-api/pkg/validators"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangePassword replaces the password of an authenticated user. The
// user's token stays valid.
func (a *Accounts) ChangePassword(ctx context.Context, u *model.User, oldPassword, new1, new2 string) error {
	verr := NewValidationError()
	required(verr,
		[2]string{"old_password", oldPassword},
		[2]string{"new_password1", new1},
		[2]string{"new_password2", new2},
	)
	if err := verr.Err(); err != nil {
		return err
	}

	ok, err := a.argon.VerifyPasswd(oldPassword, u.PasswordHash)
	if err != nil && !errors.Is(err, security.ErrInvalidHash) {
		return fmt.Errorf("failed to verify password, %w", err)
	}

	if !ok {
		a.metrics.AuthEvent("password_change", "invalid")
		return invalid("old_password", MsgInvalidOldPassword, ErrInvalidOldPassword)
	}

	if err := newPasswordErrors(new1, new2); err != nil {
		a.metrics.AuthEvent("password_change", "invalid")
		return err
	}

	hash, err := a.argon.GenerateFromPassword(new1)
	if err != nil {
		return fmt.Errorf("failed to hash password, %w", err)
	}

	err = a.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Update("password_hash", hash).
		Error
	if err != nil {
		return fmt.Errorf("failed to save password, %w", err)
	}

	u.PasswordHash = hash
	a.metrics.AuthEvent("password_change", "success")
	return nil
}

// newPasswordErrors checks the pair of new passwords, mismatch first
func newPasswordErrors(new1, new2 string) error {
	if new1 != new2 {
		return invalid("new_password2", MsgPasswordMismatch, ErrPasswordMismatch)
	}

	verr := NewValidationError()
	checkPassword(verr, "new_password2", new2)

	return verr.Err()
}

// EncodeUID is the form a user's uuid takes in reset links
func EncodeUID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

func decodeUID(uid string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(string(raw))
}

// RequestReset mails a reset link if the address belongs to an account that
// can use one. The caller always gets the same answer.
func (a *Accounts) RequestReset(ctx context.Context, email string) error {
	if email == "" {
		return invalid("email", MsgFieldRequired, ErrFieldRequired)
	}

	email = validators.NormalizeEmail(email)
	if err := validators.EmailValidator(email); err != nil {
		return invalid("email", MsgInvalidEmail, ErrInvalidEmail)
	}

	a.metrics.AuthEvent("password_reset", "requested")

	db := a.db.WithContext(ctx)

	var u model.User
	if err := db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}

		return fmt.Errorf("failed to look up user, %w", err)
	}

	if !u.IsActive || !u.HasUsablePassword() {
		return nil
	}

	verified, err := a.primaryVerified(db, u.ID)
	if err != nil {
		return err
	}

	if !verified {
		return nil
	}

	free, err := a.throttle.Acquire(ctx, "reset:"+u.UUID.String(), a.opts.MailCooldown)
	if err != nil {
		return err
	}

	if !free {
		return nil
	}

	token, err := a.reset.Make(u.UUID.String(), u.PasswordHash, u.LastLogin)
	if err != nil {
		return err
	}

	link := a.link("/auth/reset/" + EncodeUID(u.UUID) + "/" + token + "/")

	err = a.mailer.Send(ctx, resetMail(u.Email, link))
	a.metrics.MailSent("password_reset", err)
	if err != nil {
		zap.L().Error("Failed to send password reset mail", zap.Error(err))
		return nil
	}

	a.metrics.AuthEvent("password_reset", "sent")
	return nil
}

// CheckReset validates a uid and token pair without consuming it, used to
// decide whether the reset form should be shown at all.
func (a *Accounts) CheckReset(ctx context.Context, uid, token string) (*model.User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return nil, invalid("uid", MsgInvalidValue, ErrInvalidOrExpiredKey)
	}

	var u model.User
	if err := a.db.WithContext(ctx).Where("uuid = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("uid", MsgInvalidValue, ErrInvalidOrExpiredKey)
		}

		return nil, fmt.Errorf("failed to look up user, %w", err)
	}

	if err := a.reset.Check(token, u.UUID.String(), u.PasswordHash, u.LastLogin); err != nil {
		return nil, invalid("token", MsgInvalidValue, ErrInvalidOrExpiredKey)
	}

	return &u, nil
}

// ConfirmReset sets a new password through a reset link. The hash is
// swapped only if it is still the one the token was issued against, so a
// token can't be used twice.
func (a *Accounts) ConfirmReset(ctx context.Context, uid, token, new1, new2 string) error {
	verr := NewValidationError()
	required(verr,
		[2]string{"uid", uid},
		[2]string{"token", token},
		[2]string{"new_password1", new1},
		[2]string{"new_password2", new2},
	)
	if err := verr.Err(); err != nil {
		return err
	}

	u, err := a.CheckReset(ctx, uid, token)
	if err != nil {
		a.metrics.AuthEvent("password_reset", "invalid")
		return err
	}

	if err := newPasswordErrors(new1, new2); err != nil {
		return err
	}

	hash, err := a.argon.GenerateFromPassword(new1)
	if err != nil {
		return fmt.Errorf("failed to hash password, %w", err)
	}

	res := a.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND password_hash = ?", u.ID, u.PasswordHash).
		Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to save password, %w", res.Error)
	}

	if res.RowsAffected != 1 {
		a.metrics.AuthEvent("password_reset", "invalid")
		return invalid("token", MsgInvalidValue, ErrInvalidOrExpiredKey)
	}

	a.metrics.AuthEvent("password_reset", "completed")
	return nil
}
