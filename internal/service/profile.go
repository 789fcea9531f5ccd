package service

import (
	"context"
	"fmt"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/validators"
)

// UpdateProfile changes the editable profile fields. A nil name leaves the
// name alone.
func (a *Accounts) UpdateProfile(ctx context.Context, u *model.User, name *string) error {
	if name == nil {
		return nil
	}

	if err := validators.NameValidator(*name); err != nil {
		return invalid("name", MsgFieldTooLong, ErrFieldTooLong)
	}

	err := a.db.WithContext(ctx).
		Model(u).
		Update("name", *name).
		Error
	if err != nil {
		return fmt.Errorf("failed to update profile, %w", err)
	}

	u.Name = *name
	return nil
}
