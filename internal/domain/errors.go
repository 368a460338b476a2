package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. Every failure from an
// external call is converted to one of the first five kinds at the call site.

var (
	// Authoritative count lookup unavailable. Reported, never retried.
	ErrTransientLookup = errors.New("activity count temporarily unavailable")

	// Counter write failed. In-memory state is kept for the next flush.
	ErrPersistence = errors.New("progress persistence failed")

	// A single grant or revoke failed.
	ErrGroupOperation = errors.New("group operation failed")

	// Tier group binding missing or not resolvable in the guild.
	ErrConfiguration = errors.New("tier group misconfigured")

	// Someone other than the offer's subject tried to confirm it, or the
	// interaction identifier did not parse.
	ErrUnauthorized = errors.New("not allowed to confirm this promotion")

	// Promotion errors
	ErrOfferInvalid = errors.New("promotion offer no longer valid")
	ErrOfferStale   = errors.New("promotion already applied")
	ErrNotEligible  = errors.New("user not eligible for promotion")

	// Ladder errors
	ErrInvalidTierTable = errors.New("invalid tier table")
)

// ─── Operation Failures ─────────────────────────────────────────────────────

// GroupOp names a membership mutation.
type GroupOp string

const (
	OpGrant  GroupOp = "grant"
	OpRevoke GroupOp = "revoke"
)

// OperationFailure records one failed grant or revoke during reconciliation.
type OperationFailure struct {
	Op      GroupOp `json:"op"`
	GroupID string  `json:"group_id"`
	Err     error   `json:"-"`
}

func (f OperationFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.GroupID, f.Err)
}

// Unwrap exposes both ErrGroupOperation and the underlying cause.
func (f OperationFailure) Unwrap() []error {
	return []error{ErrGroupOperation, f.Err}
}
