package risk

import "errors"

// Domain-level error values returned by the risk service.
var (
	ErrNoRecord             = errors.New("no bonus-malus record")
	ErrInvalidTier          = errors.New("invalid tier")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidBaseAmount    = errors.New("invalid base amount")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
