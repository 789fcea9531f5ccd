package model

import "time"

// AuthToken is the opaque bearer credential. One per user, created on the
// first successful login and deleted on logout.
type AuthToken struct {
	Key       string    `gorm:"primaryKey;size:40"`
	UserID    uint      `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	User User `gorm:"foreignKey:UserID"`
}
