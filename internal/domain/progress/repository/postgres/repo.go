package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/progress/entities"
)

// Repository persists progress records
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new progress repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes the record, replacing any previous one for the account
func (r *Repository) Upsert(ctx context.Context, rec domain.ProgressRecord) error {
	model := entities.ProgressModel{
		AccountID:    rec.AccountID,
		CurrentGroup: rec.Current,
		TotalGroups:  rec.Total,
		Percentage:   rec.Percentage,
		GroupName:    rec.Label,
		Status:       string(rec.Status),
		UpdatedAt:    rec.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_group", "total_groups", "percentage", "group_name", "status", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert progress for account %d: %w", rec.AccountID, err)
	}
	return nil
}

// Get returns nil without error when the account has no record
func (r *Repository) Get(ctx context.Context, accountID int64) (*domain.ProgressRecord, error) {
	var model entities.ProgressModel
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress for account %d: %w", accountID, err)
	}

	return &domain.ProgressRecord{
		AccountID:  model.AccountID,
		Current:    model.CurrentGroup,
		Total:      model.TotalGroups,
		Percentage: model.Percentage,
		Label:      model.GroupName,
		Status:     domain.ProgressStatus(model.Status),
		UpdatedAt:  model.UpdatedAt,
	}, nil
}

// Delete removes the account's record if present
func (r *Repository) Delete(ctx context.Context, accountID int64) error {
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&entities.ProgressModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete progress for account %d: %w", accountID, err)
	}
	return nil
}
