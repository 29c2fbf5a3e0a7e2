package entities

import "time"

// ProgressModel is the durable progress record of an account
type ProgressModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	AccountID    int64     `gorm:"not null;uniqueIndex"`
	CurrentGroup int       `gorm:"not null"`
	TotalGroups  int       `gorm:"not null"`
	Percentage   int       `gorm:"not null"`
	GroupName    string    `gorm:"size:255"`
	Status       string    `gorm:"size:32;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ProgressModel) TableName() string {
	return "collection_progress"
}
