package errors

import (
	pkgerrors "github.com/Conte777/tg-userharvest/pkg/errors"
)

var (
	ErrCrawlInProgress = pkgerrors.NewConflictError("crawl already in progress for account")
	ErrNoAccounts      = pkgerrors.NewValidationError("no enabled accounts to collect")
	ErrInvalidWindow   = pkgerrors.NewValidationError("days must be positive")
)
