package resolver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// AdminSource is the part of domain.Connection that lists group admins
type AdminSource interface {
	AdminIDs(ctx context.Context, chat *domain.ChatHandle) (map[int64]struct{}, error)
}

// AdminResolver fetches the admin set of a resolved group
type AdminResolver struct {
	flood  domain.FloodWaitPolicy
	logger zerolog.Logger
}

// NewAdminResolver creates an AdminResolver
func NewAdminResolver(flood domain.FloodWaitPolicy, logger zerolog.Logger) *AdminResolver {
	return &AdminResolver{
		flood:  flood,
		logger: logger.With().Str("component", "admin_resolver").Logger(),
	}
}

// Admins never fails: any fetch error, an exhausted flood wait included,
// yields an empty set
func (a *AdminResolver) Admins(ctx context.Context, src AdminSource, chat *domain.ChatHandle) map[int64]struct{} {
	var admins map[int64]struct{}
	err := a.flood.Do(ctx, func() error {
		var fetchErr error
		admins, fetchErr = src.AdminIDs(ctx, chat)
		return fetchErr
	})
	if err != nil {
		a.logger.Warn().Err(err).
			Int64("chat_id", chat.MarkedID).
			Msg("admin fetch failed, continuing without admin exclusion")
		return map[int64]struct{}{}
	}
	if admins == nil {
		return map[int64]struct{}{}
	}
	return admins
}
