// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// lifecycle engine and handlers to distinguish between different failure
// scenarios. For example, ErrStatusConflict indicates that a conditional
// status update observed a different prior state than expected (a lost
// compare-and-swap race), while ErrOpenPassExists signals that the
// store-level uniqueness constraint on open passes rejected an insert.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrPassNotFound is returned when a pass lookup matches no row.
var ErrPassNotFound = errors.New("pass not found")

// ErrLocationNotFound is returned when a location lookup matches no row.
var ErrLocationNotFound = errors.New("location not found")

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

// ErrGroupNotFound is returned when an encounter group lookup matches no row.
var ErrGroupNotFound = errors.New("encounter group not found")

// ErrWindowNotFound is returned when a no-fly window lookup matches no row.
var ErrWindowNotFound = errors.New("no-fly window not found")

// ErrStatusConflict is returned when a conditional status update affects
// zero rows because the pass is no longer in the expected prior state.
// Callers should re-fetch the pass and decide whether to retry. Handlers
// should translate this into an HTTP 409 response.
var ErrStatusConflict = errors.New("pass status conflict")

// ErrOpenPassExists is returned when inserting a pass violates the
// unique open_slot key, meaning the student already holds a pending,
// approved or active pass. The engine surfaces this as an ordinary
// policy denial rather than a server error.
var ErrOpenPassExists = errors.New("student already has an open pass")
