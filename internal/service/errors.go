package service

import "errors"

var (
	ErrValidation          = errors.New("validation")           // 400
	ErrInvalidToken        = errors.New("invalid token")        // 400
	ErrUnauthenticated     = errors.New("unauthenticated")      // 401
	ErrForbidden           = errors.New("forbidden")            // 403
	ErrNotFound            = errors.New("not found")            // 404
	ErrConflict            = errors.New("conflict")             // 409
	ErrInvalidTransition   = errors.New("invalid transition")   // 409
	ErrInsufficientStock   = errors.New("insufficient stock")   // 409
	ErrInvalidReference    = errors.New("invalid reference")    // 422
	ErrInvalidTotal        = errors.New("invalid total")        // 422
	ErrNotifierUnavailable = errors.New("notifier unavailable") // logged, not surfaced
)
