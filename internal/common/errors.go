// Package common defines shared sentinel errors and small helpers used
// across the storage and service layers. Callers should use errors.Is to
// match these values; detail is attached by wrapping, e.g.
//
//	fmt.Errorf("%w: username is required", common.ErrValidation)
package common

import "errors"

var (
	// Domain errors surfaced by services.
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("invalid username or password")
	ErrAuthorization  = errors.New("access denied")
	ErrSessionExpired = errors.New("session expired, please log in again")
	ErrNotFound       = errors.New("not found")

	// Storage errors.
	ErrConnection         = errors.New("storage connection failed")
	ErrStorage            = errors.New("storage failure")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrConstraint         = errors.New("constraint violation")

	// Storage usage errors.
	ErrNotInitialized = errors.New("storage not initialized")
	ErrUnknownStore   = errors.New("unknown store")
	ErrUnknownIndex   = errors.New("unknown index")
	ErrReadOnly       = errors.New("write in read-only transaction")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
