package model

import "time"

// EmailConfirmation is a single use key mailed to the owner of an address.
// Only the SHA-256 of the key is stored.
type EmailConfirmation struct {
	ID             uint       `gorm:"primaryKey;autoIncrement"`
	EmailAddressID uint       `gorm:"index;not null"`
	KeyHash        string     `gorm:"uniqueIndex;size:64;not null"`
	SentAt         time.Time  `gorm:"not null"`
	ExpiresAt      time.Time  `gorm:"index;not null"`
	UsedAt         *time.Time `gorm:"index"`

	EmailAddress EmailAddress `gorm:"foreignKey:EmailAddressID"`
}
