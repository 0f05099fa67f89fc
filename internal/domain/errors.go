package domain

import "errors"

// Sentinel errors for the service layer. Handlers map these to HTTP codes
// with errors.Is; repositories wrap driver errors around them.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrInsufficientFunds    = errors.New("insufficient balance")
	ErrOperationUnavailable = errors.New("cannot perform operation at the moment")
	ErrConflict             = errors.New("already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotVerified   = errors.New("account not verified")
	ErrInvalidOTP           = errors.New("invalid otp")
	ErrExpiredOTP           = errors.New("otp expired")
	ErrInvalidToken         = errors.New("invalid token")
)
