package errors

import (
	pkgerrors "github.com/Conte777/tg-userharvest/pkg/errors"
)

var (
	ErrUnsupportedRange   = pkgerrors.NewValidationError("unsupported range key, expected today, yesterday, 3d or 7d")
	ErrExportStoreMissing = pkgerrors.NewServiceUnavailableError("export storage is not configured")
)
