package model

import "time"

type SocialAccount struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	UserID   uint   `gorm:"index;not null"`
	Provider string `gorm:"size:30;not null;uniqueIndex:idx_social_provider_uid"`
	// Provider scoped user id. A (provider, uid) pair maps to at most one user
	UID        string    `gorm:"column:uid;size:191;not null;uniqueIndex:idx_social_provider_uid"`
	ExtraData  string    `gorm:"type:text"`
	DateJoined time.Time `gorm:"autoCreateTime"`
	LastLogin  time.Time

	User User `gorm:"foreignKey:UserID"`
}
