// Package common defines sentinel errors shared by the client and the
// remote store server. Callers match them with errors.Is.
package common

import "errors"

var (
	// ErrNotFound is returned by repositories and remote stores when a
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken reports a malformed, expired or wrongly signed token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRowLevelSecurity reports a write against a row owned by another user.
	// Its text is matched by remote.IsAuthError, so keep the wording.
	ErrRowLevelSecurity = errors.New("new row violates row-level security policy")

	// ErrUnknownTable reports a table name outside the synced entity set.
	ErrUnknownTable = errors.New("unknown table")
)
