package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/account/entities"
)

// Repository implements domain.AccountRepository on PostgreSQL
type Repository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *gorm.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "account_repository").Logger(),
	}
}

// GetAccount returns domain.ErrAccountNotFound when the id is unknown
func (r *Repository) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var model entities.AccountModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}

	return &domain.Account{
		ID:         model.ID,
		Name:       model.Name,
		Phone:      model.Phone,
		Credential: model.SessionData,
		Enabled:    model.Enabled,
	}, nil
}

// ListSelectedGroups returns chat ids in selection order
func (r *Repository) ListSelectedGroups(ctx context.Context, accountID int64) ([]int64, error) {
	var chatIDs []int64
	err := r.db.WithContext(ctx).
		Model(&entities.SelectedGroupModel{}).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Pluck("chat_id", &chatIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list selected groups for account %d: %w", accountID, err)
	}
	return chatIDs, nil
}

// ListEnabledAccountIDs returns ids of all enabled accounts
func (r *Repository) ListEnabledAccountIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&entities.AccountModel{}).
		Where("is_enabled = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled accounts: %w", err)
	}
	return ids, nil
}

// UpdateCredential stores a refreshed session blob
func (r *Repository) UpdateCredential(ctx context.Context, id int64, credential []byte) error {
	result := r.db.WithContext(ctx).
		Model(&entities.AccountModel{}).
		Where("id = ?", id).
		Update("session_data", credential)
	if result.Error != nil {
		return fmt.Errorf("failed to update credential for account %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}

	r.logger.Debug().Int64("account_id", id).Msg("session data updated")
	return nil
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ domain.AccountRepository = (*Repository)(nil)
