// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package kerierr defines the structured error values shared by every
// component of the system: the KERI event store, the identity manager,
// the group consensus engine, and the challenge authenticator never
// return bare strings, so callers can branch on Code with errors.As.
package kerierr

import "fmt"

// Code identifies a specific failure kind, grouped into four families:
// Validation, Authentication, Resource, Transport.
type Code string

const (
	// Validation
	MalformedEvent      Code = "MALFORMED_EVENT"
	SaidMismatch        Code = "SAID_MISMATCH"
	OutOfOrder          Code = "OUT_OF_ORDER"
	PriorMismatch       Code = "PRIOR_MISMATCH"
	RotationKeyMismatch Code = "ROTATION_KEY_MISMATCH"
	DuplicateEvent      Code = "DUPLICATE_EVENT"
	NotMember           Code = "NOT_MEMBER"
	InvalidPrevId       Code = "INVALID_PREV_ID"
	InvalidMessageHash  Code = "INVALID_MESSAGE_HASH"
	DuplicateMessage    Code = "DUPLICATE_MESSAGE"
	// InvalidVote is reserved: votes carry a signed From field, so the
	// ambiguous-delta case it would cover cannot currently arise.
	InvalidVote Code = "INVALID_VOTE"

	// Authentication
	UnknownChallenge       Code = "UNKNOWN_CHALLENGE"
	Expired                Code = "EXPIRED"
	AlreadyConsumed        Code = "ALREADY_CONSUMED"
	PurposeMismatch        Code = "PURPOSE_MISMATCH"
	ArgsMismatch           Code = "ARGS_MISMATCH"
	UnknownKeyState        Code = "UNKNOWN_KEY_STATE"
	StaleKeyState          Code = "STALE_KEY_STATE"
	InsufficientSignatures Code = "INSUFFICIENT_SIGNATURES"
	InvalidSignature       Code = "INVALID_SIGNATURE"

	// Resource
	NotFound    Code = "NOT_FOUND"
	AliasInUse  Code = "ALIAS_IN_USE"
	LockedKey   Code = "LOCKED_KEY"
	WeakEntropy Code = "WEAK_ENTROPY"

	// Transport
	NotConnected Code = "NOT_CONNECTED"
	Timeout      Code = "TIMEOUT"
)

// Error is the structured error value returned by every exported operation
// in this module. Op names the operation that failed (e.g. "putEvent",
// "group.Send"); Err, when set, wraps the underlying cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, kerierr.New(code, "", nil)) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an Error for op with the given code, optionally wrapping cause.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Sentinel builds a comparison-only Error for use with errors.Is.
func Sentinel(code Code) *Error { return &Error{Code: code} }
