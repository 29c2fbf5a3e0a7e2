package entities

import "time"

// SpeakerModel is the GORM model for observed speakers
type SpeakerModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	TgUserID  int64     `gorm:"not null;uniqueIndex"`
	Username  *string   `gorm:"size:64;index"`
	FirstName *string   `gorm:"size:128"`
	LastName  *string   `gorm:"size:128"`
	IsBot     bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SpeakerModel) TableName() string {
	return "speakers"
}

// SpeakEventModel is one observed message by a speaker in a group
type SpeakEventModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	AccountID   int64     `gorm:"not null;uniqueIndex:uq_speak_event;index"`
	ChatID      int64     `gorm:"not null;uniqueIndex:uq_speak_event;index"`
	TgUserID    int64     `gorm:"not null;uniqueIndex:uq_speak_event;index"`
	MessageID   int       `gorm:"not null;uniqueIndex:uq_speak_event"`
	MessageDate time.Time `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (SpeakEventModel) TableName() string {
	return "speak_events"
}
