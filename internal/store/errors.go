package store

import "errors"

// Sentinel errors returned by every entity accessor in this package.
var (
	ErrNotFound              = errors.New("entity not found")
	ErrAlreadyExists         = errors.New("entity already exists")
	ErrInvalidTransition     = errors.New("invalid bot state transition")
	ErrNoneClaimable         = errors.New("no claimable rows available")
	ErrInsufficientCredits   = errors.New("organization has insufficient credits")
)
