// Package model defines database models
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/soft_delete"
)

// User is never hard deleted. Delete() flips IsRemoved and every default
// query filters on it, use Unscoped() to see removed rows.
type User struct {
	ID           uint                  `gorm:"primaryKey;autoIncrement" json:"-"`
	UUID         uuid.UUID             `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	Email        string                `gorm:"uniqueIndex;size:254;not null" json:"-"`
	PasswordHash string                `gorm:"not null" json:"-"`
	Name         string                `gorm:"size:255" json:"name"`
	IsActive     bool                  `gorm:"not null;default:true" json:"-"`
	IsStaff      bool                  `gorm:"not null" json:"-"`
	IsSuperuser  bool                  `gorm:"not null" json:"-"`
	IsRemoved    soft_delete.DeletedAt `gorm:"softDelete:flag;not null;default:0;index" json:"-"`
	DateJoined   time.Time             `gorm:"autoCreateTime" json:"-"`
	Modified     time.Time             `gorm:"autoUpdateTime" json:"-"`
	LastLogin    *time.Time            `json:"-"`
}

// BeforeCreate assigns the external identifier. It is never changed afterwards.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}

	return nil
}

// HasUsablePassword reports false for accounts created through a social
// provider, which carry a "!" prefixed placeholder instead of a hash.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, "!")
}

func (u *User) Removed() bool {
	return u.IsRemoved != 0
}
