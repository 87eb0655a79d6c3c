package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorResolveInProgress is returned when another resolver run already
	// holds the per-report lock. Safe to retry.
	ErrorResolveInProgress = errors.New("fact resolution already in progress for this report")
)
