package domain

import (
	"fmt"
	"time"

	pkgerrors "github.com/Conte777/tg-userharvest/pkg/errors"
)

var (
	ErrAccountNotFound    = pkgerrors.NewNotFoundError("account not found")
	ErrNoSelectedGroups   = pkgerrors.NewValidationError("no selected groups")
	ErrConnectionFailed   = pkgerrors.NewServiceUnavailableError("connection failed")
	ErrNotAuthorized      = pkgerrors.NewServiceUnavailableError("account session is not authorized")
	ErrNotConnected       = pkgerrors.NewServiceUnavailableError("not connected to Telegram")
	ErrEntityResolution   = pkgerrors.NewNotFoundError("group entity could not be resolved")
	ErrSubscriptionClosed = pkgerrors.NewConflictError("subscription closed")
)

// FloodWaitError is returned when the platform asks the caller to back off
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Wait)
}
