package deps

import (
	"context"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// Repository is the durable layer of the progress tracker.
// Get returns (nil, nil) when no record exists.
type Repository interface {
	Upsert(ctx context.Context, rec domain.ProgressRecord) error
	Get(ctx context.Context, accountID int64) (*domain.ProgressRecord, error)
	Delete(ctx context.Context, accountID int64) error
}
