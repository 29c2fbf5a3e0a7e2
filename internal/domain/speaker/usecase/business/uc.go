package business

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/tg-userharvest/config"
	"github.com/Conte777/tg-userharvest/internal/domain"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/deps"
	"github.com/Conte777/tg-userharvest/internal/domain/speaker/entities"
	speakererrors "github.com/Conte777/tg-userharvest/internal/domain/speaker/errors"
)

const listenerExportWindow = 24 * time.Hour

// Export is a rendered username list
type Export struct {
	Filename string
	Body     []byte
	Count    int
}

// UseCase serves username exports and maintenance
type UseCase struct {
	repo     deps.Repository
	store    deps.ObjectStore
	clock    domain.Clock
	location *time.Location
	logger   zerolog.Logger
}

// Params are the fx dependencies of UseCase
type Params struct {
	fx.In

	Repo   deps.Repository
	Store  deps.ObjectStore `optional:"true"`
	Clock  domain.Clock
	Config *config.ExportConfig
	Logger zerolog.Logger
}

// NewUseCase creates the speaker use case
func NewUseCase(p Params) (*UseCase, error) {
	loc, err := time.LoadLocation(p.Config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid export timezone: %w", err)
	}
	return &UseCase{
		repo:     p.Repo,
		store:    p.Store,
		clock:    p.Clock,
		location: loc,
		logger:   p.Logger.With().Str("component", "speaker_usecase").Logger(),
	}, nil
}

// Window converts a range key into a UTC [from, to) window relative to now
func Window(rangeKey string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var from, to time.Time
	switch rangeKey {
	case "today":
		from, to = midnight, midnight.AddDate(0, 0, 1)
	case "yesterday":
		from, to = midnight.AddDate(0, 0, -1), midnight
	case "3d":
		from, to = local.AddDate(0, 0, -3), local
	case "7d":
		from, to = local.AddDate(0, 0, -7), local
	default:
		return time.Time{}, time.Time{}, speakererrors.ErrUnsupportedRange
	}
	return from.UTC(), to.UTC(), nil
}

// ExportRange renders handles of speakers active in the range
func (uc *UseCase) ExportRange(ctx context.Context, rangeKey string, accountID, chatID *int64) (*Export, error) {
	from, to, err := Window(rangeKey, uc.clock.Now(), uc.location)
	if err != nil {
		return nil, err
	}

	usernames, err := uc.repo.UsernamesInWindow(ctx, entities.UsernameFilter{
		From:      from,
		To:        to,
		AccountID: accountID,
		ChatID:    chatID,
	})
	if err != nil {
		return nil, err
	}

	return render(fmt.Sprintf("usernames_%s.txt", rangeKey), usernames, ""), nil
}

// ExportListener renders handles an account collected in the last 24 hours
func (uc *UseCase) ExportListener(ctx context.Context, accountID int64) (*Export, error) {
	now := uc.clock.Now()
	usernames, err := uc.repo.UsernamesInWindow(ctx, entities.UsernameFilter{
		From:      now.Add(-listenerExportWindow),
		To:        now,
		AccountID: &accountID,
	})
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("listener_usernames_account_%d_%s.txt", accountID, now.In(uc.location).Format("20060102_150405"))
	return render(filename, usernames, "# no usernames collected by the listener yet\n"), nil
}

// ExportCleaned renders every well-formed handle
func (uc *UseCase) ExportCleaned(ctx context.Context) (*Export, error) {
	usernames, err := uc.repo.CleanedUsernames(ctx)
	if err != nil {
		return nil, err
	}
	filename := fmt.Sprintf("cleaned_usernames_%s.txt", uc.clock.Now().In(uc.location).Format("20060102_150405"))
	return render(filename, usernames, ""), nil
}

// Upload stores an export in object storage and returns its URL
func (uc *UseCase) Upload(ctx context.Context, export *Export) (string, error) {
	if uc.store == nil {
		return "", speakererrors.ErrExportStoreMissing
	}

	key := fmt.Sprintf("exports/%s/%s", uc.clock.Now().In(uc.location).Format("2006/01/02"), export.Filename)
	url, err := uc.store.UploadObject(ctx, key, "text/plain; charset=utf-8", export.Body)
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	uc.logger.Info().Str("object_key", key).Int("count", export.Count).Msg("export uploaded")
	return url, nil
}

// Cleanup runs the maintenance pass
func (uc *UseCase) Cleanup(ctx context.Context) (*entities.CleanupReport, error) {
	return uc.repo.Cleanup(ctx)
}

// Stats returns collection totals
func (uc *UseCase) Stats(ctx context.Context) (*entities.Stats, error) {
	return uc.repo.Stats(ctx)
}

// render writes one '@handle' per line; empty lists yield emptyBody
func render(filename string, usernames []string, emptyBody string) *Export {
	var buf bytes.Buffer
	count := 0
	seen := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		handle := domain.NormalizeHandle(u)
		if handle == "" || handle == "@" {
			continue
		}
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		buf.WriteString(handle)
		buf.WriteByte('\n')
		count++
	}
	if count == 0 {
		buf.WriteString(emptyBody)
	}
	return &Export{Filename: filename, Body: buf.Bytes(), Count: count}
}
