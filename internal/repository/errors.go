// Package repository implements MySQL persistence for seat allocation.
// The sentinel values below let the allocation layer tell referential
// failures apart from datastore failures without inspecting SQL errors.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource owned by another trainer.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a conditional write matched no row
// because a concurrent request changed it first.
var ErrConflict = errors.New("conflict")

// ErrPlanNotFound is returned when no plan row has the requested ID.
var ErrPlanNotFound = errors.New("plan not found")

// ErrStudentNotFound is returned when no student row has the requested ID.
var ErrStudentNotFound = errors.New("student not found")

// ErrTokenNotFound is returned when no token row has the requested ID.
var ErrTokenNotFound = errors.New("token not found")
