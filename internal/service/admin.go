package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitwise74/accounts-api/internal/model"
	"bitwise74/accounts-api/pkg/validators"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const AdminPageSize = 50

type UserFilter struct {
	Search    string
	IsActive  *bool
	IsRemoved *bool
	Page      int
}

type AdminUser struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	UUID       uuid.UUID `json:"uuid"`
	Verified   bool      `json:"verified"`
	IsActive   bool      `json:"is_active"`
	IsStaff    bool      `json:"is_staff"`
	IsRemoved  bool      `json:"is_removed"`
	DateJoined time.Time `json:"date_joined"`
	Modified   time.Time `json:"modified"`
}

type UserPage struct {
	Count   int64       `json:"count"`
	Page    int         `json:"page"`
	Results []AdminUser `json:"results"`
}

type adminRow struct {
	Email      string
	Name       string
	UUID       uuid.UUID
	Verified   *bool
	IsActive   bool
	IsStaff    bool
	IsRemoved  uint
	DateJoined time.Time
	Modified   time.Time
}

func (r adminRow) toAdminUser() AdminUser {
	return AdminUser{
		Email:      r.Email,
		Name:       r.Name,
		UUID:       r.UUID,
		Verified:   r.Verified != nil && *r.Verified,
		IsActive:   r.IsActive,
		IsStaff:    r.IsStaff,
		IsRemoved:  r.IsRemoved != 0,
		DateJoined: r.DateJoined,
		Modified:   r.Modified,
	}
}

func (a *Accounts) adminQuery(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx).
		Unscoped().
		Table("users").
		Joins("LEFT JOIN email_addresses ON email_addresses.user_id = users.id AND email_addresses.is_primary = ?", true)
}

const adminColumns = "users.email, users.name, users.uuid, email_addresses.verified AS verified, " +
	"users.is_active, users.is_staff, users.is_removed, users.date_joined, users.modified"

// ListUsers pages through every user, removed ones included, newest first
func (a *Accounts) ListUsers(ctx context.Context, f UserFilter) (*UserPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}

	filter := func(q *gorm.DB) *gorm.DB {
		if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
			like := "%" + s + "%"
			q = q.Where("LOWER(users.email) LIKE ? OR LOWER(users.name) LIKE ?", like, like)
		}

		if f.IsActive != nil {
			q = q.Where("users.is_active = ?", *f.IsActive)
		}

		if f.IsRemoved != nil {
			if *f.IsRemoved {
				q = q.Where("users.is_removed <> 0")
			} else {
				q = q.Where("users.is_removed = 0")
			}
		}

		return q
	}

	var count int64
	if err := a.adminQuery(ctx).Scopes(filter).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count users, %w", err)
	}

	var rows []adminRow

	err := a.adminQuery(ctx).
		Scopes(filter).
		Select(adminColumns).
		Order("users.date_joined DESC, users.id DESC").
		Limit(AdminPageSize).
		Offset((f.Page - 1) * AdminPageSize).
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users, %w", err)
	}

	page := &UserPage{
		Count:   count,
		Page:    f.Page,
		Results: make([]AdminUser, len(rows)),
	}

	for i, r := range rows {
		page.Results[i] = r.toAdminUser()
	}

	return page, nil
}

func (a *Accounts) GetUser(ctx context.Context, id uuid.UUID) (*AdminUser, error) {
	var rows []adminRow

	err := a.adminQuery(ctx).
		Select(adminColumns).
		Where("users.uuid = ?", id).
		Limit(1).
		Scan(&rows).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up user, %w", err)
	}

	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	u := rows[0].toAdminUser()
	return &u, nil
}

type UserFlags struct {
	IsActive  *bool
	IsRemoved *bool
}

// UpdateUserFlags toggles activity and removal. Removing a user also drops
// their token.
func (a *Accounts) UpdateUserFlags(ctx context.Context, id uuid.UUID, f UserFlags) (*AdminUser, error) {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.Unscoped().Where("uuid = ?", id).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}

			return fmt.Errorf("failed to look up user, %w", err)
		}

		updates := map[string]any{}

		if f.IsActive != nil {
			updates["is_active"] = *f.IsActive
		}

		if f.IsRemoved != nil {
			if *f.IsRemoved {
				updates["is_removed"] = 1
			} else {
				updates["is_removed"] = 0
			}
		}

		if len(updates) > 0 {
			err := tx.Unscoped().
				Model(&model.User{}).
				Where("id = ?", u.ID).
				Updates(updates).
				Error
			if err != nil {
				return fmt.Errorf("failed to update user, %w", err)
			}
		}

		if f.IsRemoved != nil && *f.IsRemoved {
			return deleteTokens(tx, u.ID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return a.GetUser(ctx, id)
}

// RemoveUser soft deletes the user, the row is kept
func (a *Accounts) RemoveUser(ctx context.Context, id uuid.UUID) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.Unscoped().Where("uuid = ?", id).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}

			return fmt.Errorf("failed to look up user, %w", err)
		}

		if !u.Removed() {
			if err := tx.Delete(&u).Error; err != nil {
				return fmt.Errorf("failed to remove user, %w", err)
			}
		}

		a.metrics.AuthEvent("admin_remove", "success")
		return deleteTokens(tx, u.ID)
	})
}

func deleteTokens(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&model.AuthToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete tokens, %w", err)
	}

	return nil
}

// CreateSuperuser makes a verified staff account
func (a *Accounts) CreateSuperuser(ctx context.Context, email, password, name string) (*model.User, error) {
	email = validators.NormalizeEmail(email)

	if err := validators.EmailValidator(email); err != nil {
		return nil, fmt.Errorf("invalid email, %w", err)
	}

	if err := validators.PasswordValidator(password); err != nil {
		return nil, fmt.Errorf("invalid password, %w", err)
	}

	if err := validators.NameValidator(name); err != nil {
		return nil, fmt.Errorf("invalid name, %w", err)
	}

	hash, err := a.argon.GenerateFromPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	u := model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsStaff:      true,
		IsSuperuser:  true,
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailAlreadyRegistered
			}

			return fmt.Errorf("failed to create user, %w", err)
		}

		return tx.Create(&model.EmailAddress{
			UserID:   u.ID,
			Email:    email,
			Verified: true,
			Primary:  true,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return &u, nil
}
