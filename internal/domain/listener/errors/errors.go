package errors

import (
	pkgerrors "github.com/Conte777/tg-userharvest/pkg/errors"
)

var (
	ErrListenerAlreadyActive = pkgerrors.NewConflictError("listener already active for account")
	ErrListenerNotActive     = pkgerrors.NewConflictError("listener is not active for account")
)
