package entities

import "time"

// AccountModel is the GORM model for managed accounts
type AccountModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"size:64;not null"`
	Phone       string    `gorm:"size:32"`
	SessionData []byte    `gorm:"column:session_data"`
	Enabled     bool      `gorm:"column:is_enabled;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

// GroupModel is a group an account is a member of
type GroupModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	AccountID int64     `gorm:"not null;uniqueIndex:uq_groups_account_chat"`
	ChatID    int64     `gorm:"not null;uniqueIndex:uq_groups_account_chat"`
	Title     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"not null"`
}

func (GroupModel) TableName() string {
	return "groups"
}

// SelectedGroupModel marks a group as in scope for collection
type SelectedGroupModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	AccountID int64     `gorm:"not null;uniqueIndex:uq_selected_groups_account_chat"`
	ChatID    int64     `gorm:"not null;uniqueIndex:uq_selected_groups_account_chat"`
	CreatedAt time.Time `gorm:"not null"`
}

func (SelectedGroupModel) TableName() string {
	return "selected_groups"
}
