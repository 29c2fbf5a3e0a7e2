package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/entities"
)

// Repository stores speakers and speak events
type Repository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewRepository creates a new speaker repository
func NewRepository(db *gorm.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "speaker_repository").Logger(),
	}
}

// SaveObservation upserts the speaker and inserts the event in one transaction.
// A duplicate event is not an error; inserted reports false in that case.
func (r *Repository) SaveObservation(ctx context.Context, obs domain.Observation) (bool, error) {
	inserted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSpeaker(tx, obs.Speaker); err != nil {
			return fmt.Errorf("failed to upsert speaker %d: %w", obs.Speaker.TgUserID, err)
		}

		event := entities.SpeakEventModel{
			AccountID:   obs.Event.AccountID,
			ChatID:      obs.Event.ChatID,
			TgUserID:    obs.Event.TgUserID,
			MessageID:   obs.Event.MessageID,
			MessageDate: obs.Event.MessageDate.UTC(),
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
		if result.Error != nil {
			return fmt.Errorf("failed to insert speak event: %w", result.Error)
		}
		inserted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// upsertSpeaker creates the speaker or refreshes it. Display names are only
// written on creation; an empty handle never overwrites a stored one.
func upsertSpeaker(tx *gorm.DB, s domain.Speaker) error {
	model := entities.SpeakerModel{
		TgUserID:  s.TgUserID,
		Username:  nullable(s.Username),
		FirstName: nullable(s.FirstName),
		LastName:  nullable(s.LastName),
		IsBot:     s.IsBot,
	}

	columns := []string{"is_bot", "updated_at"}
	if s.Username != "" {
		columns = append(columns, "username")
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tg_user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&model).Error
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UsernamesInWindow returns distinct non-empty handles of speakers with events in [From, To)
func (r *Repository) UsernamesInWindow(ctx context.Context, f entities.UsernameFilter) ([]string, error) {
	q := r.db.WithContext(ctx).
		Table("speak_events AS e").
		Joins("JOIN speakers AS s ON s.tg_user_id = e.tg_user_id").
		Where("e.message_date >= ? AND e.message_date < ?", f.From.UTC(), f.To.UTC()).
		Where("s.username IS NOT NULL AND s.username <> ''")
	if f.AccountID != nil {
		q = q.Where("e.account_id = ?", *f.AccountID)
	}
	if f.ChatID != nil {
		q = q.Where("e.chat_id = ?", *f.ChatID)
	}

	var usernames []string
	if err := q.Distinct("s.username").Order("s.username").Pluck("s.username", &usernames).Error; err != nil {
		return nil, fmt.Errorf("failed to query usernames in window: %w", err)
	}
	return usernames, nil
}

// CleanedUsernames returns every well-formed handle, sorted
func (r *Repository) CleanedUsernames(ctx context.Context) ([]string, error) {
	var usernames []string
	err := r.db.WithContext(ctx).
		Model(&entities.SpeakerModel{}).
		Where("username LIKE ? AND username <> ?", "@%", "@").
		Order("username").
		Pluck("username", &usernames).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query cleaned usernames: %w", err)
	}
	return usernames, nil
}

// Cleanup removes speakers without a usable handle along with their events,
// prefixes '@' onto bare handles and drops events whose speaker is gone.
func (r *Repository) Cleanup(ctx context.Context) (*entities.CleanupReport, error) {
	report := &entities.CleanupReport{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		handleless := tx.Model(&entities.SpeakerModel{}).
			Select("tg_user_id").
			Where("username IS NULL OR username = '' OR username = '@'")

		res := tx.Where("tg_user_id IN (?)", handleless).Delete(&entities.SpeakEventModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete events of handleless speakers: %w", res.Error)
		}
		report.RemovedEvents = res.RowsAffected

		res = tx.Where("username IS NULL OR username = '' OR username = '@'").Delete(&entities.SpeakerModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete handleless speakers: %w", res.Error)
		}
		report.RemovedSpeakers = res.RowsAffected

		res = tx.Model(&entities.SpeakerModel{}).
			Where("username NOT LIKE ?", "@%").
			Update("username", gorm.Expr("'@' || username"))
		if res.Error != nil {
			return fmt.Errorf("failed to normalize handles: %w", res.Error)
		}
		report.FixedHandles = res.RowsAffected

		known := tx.Model(&entities.SpeakerModel{}).Select("tg_user_id")
		res = tx.Where("tg_user_id NOT IN (?)", known).Delete(&entities.SpeakEventModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete orphan events: %w", res.Error)
		}
		report.RemovedOrphans = res.RowsAffected

		return tx.Model(&entities.SpeakerModel{}).Count(&report.RemainingTotal).Error
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int64("removed_speakers", report.RemovedSpeakers).
		Int64("removed_events", report.RemovedEvents).
		Int64("fixed_handles", report.FixedHandles).
		Int64("removed_orphans", report.RemovedOrphans).
		Msg("database cleanup completed")

	return report, nil
}

// Stats returns collection totals, the latest speakers and per-account volume
func (r *Repository) Stats(ctx context.Context) (*entities.Stats, error) {
	db := r.db.WithContext(ctx)
	stats := &entities.Stats{}

	if err := db.Model(&entities.SpeakerModel{}).Count(&stats.TotalSpeakers).Error; err != nil {
		return nil, fmt.Errorf("failed to count speakers: %w", err)
	}
	if err := db.Model(&entities.SpeakerModel{}).
		Where("username IS NOT NULL AND username <> ''").
		Count(&stats.SpeakersWithUsername).Error; err != nil {
		return nil, fmt.Errorf("failed to count speakers with username: %w", err)
	}
	if err := db.Model(&entities.SpeakEventModel{}).Count(&stats.TotalEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to count speak events: %w", err)
	}

	var recent []entities.SpeakerModel
	if err := db.Where("username IS NOT NULL").Order("created_at DESC").Limit(10).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent speakers: %w", err)
	}
	stats.Recent = make([]entities.RecentSpeaker, 0, len(recent))
	for _, m := range recent {
		stats.Recent = append(stats.Recent, entities.RecentSpeaker{
			Username:  deref(m.Username),
			FirstName: deref(m.FirstName),
			LastName:  deref(m.LastName),
			CreatedAt: m.CreatedAt,
		})
	}

	err := db.Raw(`
		SELECT a.id AS account_id, a.name AS account_name,
		       COUNT(DISTINCT e.tg_user_id) AS speaker_count, COUNT(e.id) AS event_count
		FROM accounts a
		LEFT JOIN speak_events e ON a.id = e.account_id
		GROUP BY a.id, a.name
		ORDER BY speaker_count DESC, a.id`).Scan(&stats.Accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate account stats: %w", err)
	}

	return stats, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.SpeakerRepository = (*Repository)(nil)
