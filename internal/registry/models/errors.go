package models

import "errors"

// Create rejections.
var (
	ErrOwnershipLimitExceeded = errors.New("ownership limit exceeded")
	ErrCounterOverflow        = errors.New("entity counter overflow")
	ErrIdentityCollision      = errors.New("identity collision")
	ErrBeaconUnavailable      = errors.New("randomness beacon unavailable")
)

// Remove rejections. Existence is checked before ownership.
var (
	ErrNotFound = errors.New("entity not found")
	ErrNotOwner = errors.New("caller does not own entity")
)

// Structure-level failures returned by the ownership index and counter.
var (
	ErrCapacityExceeded = errors.New("owner index capacity exceeded")
	ErrOverflow         = errors.New("counter overflow")
	ErrUnderflow        = errors.New("counter underflow")
)
