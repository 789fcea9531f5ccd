package model

type EmailAddress struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	UserID   uint   `gorm:"index;not null"`
	Email    string `gorm:"uniqueIndex;size:254;not null"`
	Verified bool   `gorm:"not null"`
	// "primary" is a reserved word in most SQL dialects
	Primary bool `gorm:"column:is_primary;not null"`

	User User `gorm:"foreignKey:UserID"`
}
