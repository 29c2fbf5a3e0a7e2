package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/updates"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdatesStateModel is the common update-gap state of one logged-in user
type UpdatesStateModel struct {
	UserID int64 `gorm:"primaryKey;column:user_id"`
	Pts    int   `gorm:"column:pts"`
	Qts    int   `gorm:"column:qts"`
	Date   int   `gorm:"column:date"`
	Seq    int   `gorm:"column:seq"`
}

func (UpdatesStateModel) TableName() string {
	return "telegram_updates_state"
}

// ChannelStateModel is the per-channel pts and access hash of one logged-in user
type ChannelStateModel struct {
	UserID     int64 `gorm:"primaryKey;column:user_id"`
	ChannelID  int64 `gorm:"primaryKey;column:channel_id"`
	Pts        int   `gorm:"column:pts"`
	AccessHash int64 `gorm:"column:access_hash"`
}

func (ChannelStateModel) TableName() string {
	return "telegram_channel_state"
}

// UpdatesStateStorage persists gotd update-gap state so a restarted listener
// resumes from the last seen pts. It also serves channel access hashes.
type UpdatesStateStorage struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewUpdatesStateStorage creates a new PostgreSQL-based state storage
func NewUpdatesStateStorage(db *gorm.DB, logger zerolog.Logger) *UpdatesStateStorage {
	return &UpdatesStateStorage{
		db:     db,
		logger: logger.With().Str("component", "updates_state_storage").Logger(),
	}
}

// GetState retrieves the updates state for a user
func (s *UpdatesStateStorage) GetState(ctx context.Context, userID int64) (updates.State, bool, error) {
	var m UpdatesStateModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return updates.State{}, false, nil
	}
	if err != nil {
		return updates.State{}, false, fmt.Errorf("failed to get updates state for %d: %w", userID, err)
	}

	return updates.State{Pts: m.Pts, Qts: m.Qts, Date: m.Date, Seq: m.Seq}, true, nil
}

// SetState saves the complete updates state for a user
func (s *UpdatesStateStorage) SetState(ctx context.Context, userID int64, state updates.State) error {
	return s.upsertState(ctx, UpdatesStateModel{
		UserID: userID,
		Pts:    state.Pts,
		Qts:    state.Qts,
		Date:   state.Date,
		Seq:    state.Seq,
	}, "pts", "qts", "date", "seq")
}

func (s *UpdatesStateStorage) SetPts(ctx context.Context, userID int64, pts int) error {
	return s.upsertState(ctx, UpdatesStateModel{UserID: userID, Pts: pts}, "pts")
}

func (s *UpdatesStateStorage) SetQts(ctx context.Context, userID int64, qts int) error {
	return s.upsertState(ctx, UpdatesStateModel{UserID: userID, Qts: qts}, "qts")
}

func (s *UpdatesStateStorage) SetDate(ctx context.Context, userID int64, date int) error {
	return s.upsertState(ctx, UpdatesStateModel{UserID: userID, Date: date}, "date")
}

func (s *UpdatesStateStorage) SetSeq(ctx context.Context, userID int64, seq int) error {
	return s.upsertState(ctx, UpdatesStateModel{UserID: userID, Seq: seq}, "seq")
}

func (s *UpdatesStateStorage) SetDateSeq(ctx context.Context, userID int64, date, seq int) error {
	return s.upsertState(ctx, UpdatesStateModel{UserID: userID, Date: date, Seq: seq}, "date", "seq")
}

// upsertState inserts m or overwrites only columns on an existing row
func (s *UpdatesStateStorage) upsertState(ctx context.Context, m UpdatesStateModel, columns ...string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&m).Error
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", m.UserID).Strs("columns", columns).Msg("failed to save updates state")
		return err
	}
	return nil
}

// GetChannelPts retrieves the pts value for a specific channel
func (s *UpdatesStateStorage) GetChannelPts(ctx context.Context, userID, channelID int64) (int, bool, error) {
	m, found, err := s.channelState(ctx, userID, channelID)
	if err != nil || !found {
		return 0, false, err
	}
	return m.Pts, true, nil
}

// SetChannelPts saves the pts value for a specific channel
func (s *UpdatesStateStorage) SetChannelPts(ctx context.Context, userID, channelID int64, pts int) error {
	return s.upsertChannel(ctx, ChannelStateModel{UserID: userID, ChannelID: channelID, Pts: pts}, "pts")
}

// ForEachChannels iterates over all channels for a user
func (s *UpdatesStateStorage) ForEachChannels(ctx context.Context, userID int64, f func(ctx context.Context, channelID int64, pts int) error) error {
	var states []ChannelStateModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&states).Error; err != nil {
		return fmt.Errorf("failed to list channel states for %d: %w", userID, err)
	}

	for _, st := range states {
		if err := f(ctx, st.ChannelID, st.Pts); err != nil {
			return err
		}
	}
	return nil
}

// GetChannelAccessHash implements updates.ChannelAccessHasher
func (s *UpdatesStateStorage) GetChannelAccessHash(ctx context.Context, userID, channelID int64) (int64, bool, error) {
	m, found, err := s.channelState(ctx, userID, channelID)
	if err != nil || !found || m.AccessHash == 0 {
		return 0, false, err
	}
	return m.AccessHash, true, nil
}

// SetChannelAccessHash implements updates.ChannelAccessHasher
func (s *UpdatesStateStorage) SetChannelAccessHash(ctx context.Context, userID, channelID, accessHash int64) error {
	return s.upsertChannel(ctx, ChannelStateModel{UserID: userID, ChannelID: channelID, AccessHash: accessHash}, "access_hash")
}

func (s *UpdatesStateStorage) channelState(ctx context.Context, userID, channelID int64) (ChannelStateModel, bool, error) {
	var m ChannelStateModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("failed to get channel state %d/%d: %w", userID, channelID, err)
	}
	return m, true, nil
}

func (s *UpdatesStateStorage) upsertChannel(ctx context.Context, m ChannelStateModel, columns ...string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&m).Error
	if err != nil {
		s.logger.Error().Err(err).
			Int64("user_id", m.UserID).
			Int64("channel_id", m.ChannelID).
			Strs("columns", columns).
			Msg("failed to save channel state")
		return err
	}
	return nil
}

var (
	_ updates.StateStorage        = (*UpdatesStateStorage)(nil)
	_ updates.ChannelAccessHasher = (*UpdatesStateStorage)(nil)
)
