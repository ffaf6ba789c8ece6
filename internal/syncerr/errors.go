// Package syncerr holds the error taxonomy shared by the synchronization engine.
//
// Every failure is classified by wrapping one of the sentinels below, so callers
// use errors.Is to decide how to present or retry it.
package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or invalid strategy/mapping options. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrSchemaDrift marks a live source schema that no longer matches the active version.
	ErrSchemaDrift = errors.New("schema drift")
	// ErrCapability marks a connector that lacks a capability the strategy needs.
	ErrCapability = errors.New("connector capability missing")
	// ErrTableShape marks a destination table missing a column the mapping requires.
	ErrTableShape = errors.New("destination table shape mismatch")
	// ErrTransientIO marks connectivity failures that survived the retry budget.
	ErrTransientIO = errors.New("transient i/o failure")
	// ErrNoActiveVersion is returned when a profile has no active schema version.
	ErrNoActiveVersion = errors.New("profile has no active schema version")
	// ErrRunInProgress is returned when another run holds the profile lock.
	ErrRunInProgress = errors.New("a sync for this profile is already running")
	// ErrNotFound is returned when a source, profile, version or run does not exist.
	ErrNotFound = errors.New("not found")
)

// Configuration builds an ErrConfiguration with a formatted message.
func Configuration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Capability builds an ErrCapability naming the connector and the missing capability.
func Capability(connector, capability string) error {
	return fmt.Errorf("%w: connector %q does not support %s", ErrCapability, connector, capability)
}

// SchemaDriftError reports a mismatch between the stored and the live schema hash.
type SchemaDriftError struct {
	Dataset  string
	Expected string
	Actual   string
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("source schema for %q has changed since the active schema version was created (expected hash %s, got %s); create and activate a new schema version to continue",
		e.Dataset, short(e.Expected), short(e.Actual))
}

func (e *SchemaDriftError) Is(target error) bool { return target == ErrSchemaDrift }

// TableShapeError wraps a database error caused by a column missing from the destination table.
type TableShapeError struct {
	Table string
	Err   error
}

func (e *TableShapeError) Error() string {
	return fmt.Sprintf("%v. Hint: destination table %q does not have a column the active mapping writes to. "+
		"This usually means mapped columns were added while an old table is reused; create and activate a new schema version so a fresh table is built",
		e.Err, e.Table)
}

func (e *TableShapeError) Unwrap() error { return e.Err }

func (e *TableShapeError) Is(target error) bool { return target == ErrTableShape }

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
