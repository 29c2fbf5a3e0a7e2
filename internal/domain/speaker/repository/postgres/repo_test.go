package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Conte777/tg-userharvest/internal/domain"
	accountentities "github.com/Conte777/tg-userharvest/internal/domain/account/entities"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountentities.AccountModel{},
		&entities.SpeakerModel{},
		&entities.SpeakEventModel{},
	))
	return db
}

func observation(accountID, chatID, userID int64, messageID int, username string, at time.Time) domain.Observation {
	return domain.Observation{
		Speaker: domain.Speaker{TgUserID: userID, Username: username, FirstName: "First", LastName: "Last"},
		Event: domain.SpeakEvent{
			AccountID:   accountID,
			ChatID:      chatID,
			TgUserID:    userID,
			MessageID:   messageID,
			MessageDate: at,
		},
	}
}

func TestSaveObservation_DuplicateEventIsNotNew(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.SaveObservation(ctx, observation(1, 100, 7, 55, "alice", at))
	require.NoError(t, err)
	assert.True(t, inserted)

	for i := 0; i < 3; i++ {
		inserted, err = repo.SaveObservation(ctx, observation(1, 100, 7, 55, "alice", at))
		require.NoError(t, err)
		assert.False(t, inserted)
	}

	var count int64
	require.NoError(t, db.Model(&entities.SpeakEventModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	inserted, err = repo.SaveObservation(ctx, observation(2, 100, 7, 55, "alice", at))
	require.NoError(t, err)
	assert.True(t, inserted, "same message seen by another account is a separate event")
}

func TestSaveObservation_SpeakerMutationRules(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Now().UTC()

	_, err := repo.SaveObservation(ctx, observation(1, 100, 7, 1, "alice", at))
	require.NoError(t, err)

	renamed := observation(1, 100, 7, 2, "", at)
	renamed.Speaker.FirstName = "Changed"
	_, err = repo.SaveObservation(ctx, renamed)
	require.NoError(t, err)

	var s entities.SpeakerModel
	require.NoError(t, db.Where("tg_user_id = ?", 7).First(&s).Error)
	require.NotNil(t, s.Username)
	assert.Equal(t, "alice", *s.Username, "empty handle must not overwrite")
	require.NotNil(t, s.FirstName)
	assert.Equal(t, "First", *s.FirstName, "display name is set only at creation")

	_, err = repo.SaveObservation(ctx, observation(1, 100, 7, 3, "@alice2", at))
	require.NoError(t, err)
	require.NoError(t, db.Where("tg_user_id = ?", 7).First(&s).Error)
	assert.Equal(t, "@alice2", *s.Username)

	var speakers int64
	require.NoError(t, db.Model(&entities.SpeakerModel{}).Count(&speakers).Error)
	assert.Equal(t, int64(1), speakers)
}

func TestSaveObservation_RollsBackSpeakerWhenEventFails(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, db.Migrator().DropTable(&entities.SpeakEventModel{}))

	_, err := repo.SaveObservation(context.Background(), observation(1, 100, 7, 1, "alice", time.Now()))
	require.Error(t, err)

	var speakers int64
	require.NoError(t, db.Model(&entities.SpeakerModel{}).Count(&speakers).Error)
	assert.Zero(t, speakers)
}

func TestUsernamesInWindow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	seed := []domain.Observation{
		observation(1, 100, 1, 1, "carol", base.Add(1*time.Hour)),
		observation(1, 100, 2, 2, "@alice", base.Add(2*time.Hour)),
		observation(1, 200, 3, 3, "bob", base.Add(3*time.Hour)),
		observation(2, 100, 4, 4, "dave", base.Add(4*time.Hour)),
		observation(1, 100, 5, 5, "", base.Add(5*time.Hour)),
		observation(1, 100, 6, 6, "old", base.Add(-time.Hour)),
		observation(1, 100, 2, 7, "@alice", base.Add(6*time.Hour)),
	}
	for _, obs := range seed {
		_, err := repo.SaveObservation(ctx, obs)
		require.NoError(t, err)
	}

	window := entities.UsernameFilter{From: base, To: base.Add(24 * time.Hour)}
	all, err := repo.UsernamesInWindow(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "bob", "carol", "dave"}, all)

	account := int64(1)
	window.AccountID = &account
	byAccount, err := repo.UsernamesInWindow(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "bob", "carol"}, byAccount)

	chat := int64(200)
	window.ChatID = &chat
	byChat, err := repo.UsernamesInWindow(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, byChat)
}

func TestCleanup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Now().UTC()

	for _, obs := range []domain.Observation{
		observation(1, 100, 1, 1, "alice", at),
		observation(1, 100, 2, 2, "@bob", at),
		observation(1, 100, 3, 3, "", at),
		observation(1, 100, 3, 4, "", at),
	} {
		_, err := repo.SaveObservation(ctx, obs)
		require.NoError(t, err)
	}
	require.NoError(t, db.Create(&entities.SpeakEventModel{AccountID: 1, ChatID: 100, TgUserID: 99, MessageID: 9, MessageDate: at}).Error)

	report, err := repo.Cleanup(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.RemovedSpeakers)
	assert.Equal(t, int64(2), report.RemovedEvents)
	assert.Equal(t, int64(1), report.FixedHandles)
	assert.Equal(t, int64(1), report.RemovedOrphans)
	assert.Equal(t, int64(2), report.RemainingTotal)

	cleaned, err := repo.CleanedUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice", "@bob"}, cleaned)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, db.Create(&accountentities.AccountModel{Name: "main", Enabled: true}).Error)
	require.NoError(t, db.Create(&accountentities.AccountModel{Name: "idle", Enabled: true}).Error)

	for _, obs := range []domain.Observation{
		observation(1, 100, 1, 1, "alice", at),
		observation(1, 100, 1, 2, "alice", at),
		observation(1, 100, 2, 3, "", at),
	} {
		_, err := repo.SaveObservation(ctx, obs)
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalSpeakers)
	assert.Equal(t, int64(1), stats.SpeakersWithUsername)
	assert.Equal(t, int64(3), stats.TotalEvents)
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, "alice", stats.Recent[0].Username)
	require.Len(t, stats.Accounts, 2)
	assert.Equal(t, "main", stats.Accounts[0].AccountName)
	assert.Equal(t, int64(2), stats.Accounts[0].SpeakerCount)
	assert.Equal(t, int64(3), stats.Accounts[0].EventCount)
	assert.Equal(t, int64(0), stats.Accounts[1].EventCount)
}
