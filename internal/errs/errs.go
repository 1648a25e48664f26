// Package errs defines the sentinel errors shared across the service and
// handler layers. Handlers map these onto HTTP status codes; the relay layer
// never surfaces ErrUnreachable to callers (routing to an absent peer is a
// silent no-op by contract).
package errs

import "errors"

var (
	ErrEmptyText         = errors.New("message text is required")
	ErrNotFound          = errors.New("record not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnreachable       = errors.New("target is not reachable")
	ErrMediaUnavailable  = errors.New("cannot access camera/microphone")
	ErrNegotiationFailed = errors.New("connection failed")
	ErrBusy              = errors.New("peer is busy")
	ErrNoAnswer          = errors.New("call was not answered")
	ErrUserExists        = errors.New("user already exists")
	ErrInvalidLogin      = errors.New("invalid email or password")
	ErrInvalidPassword   = errors.New("password does not meet complexity requirements")
	ErrTokenGeneration   = errors.New("failed to generate token")
)
