// Package fhe defines the gas unit, the canonical operation names and the
// error taxonomy shared by the cost registry, the estimation engine and the
// analysis store.
package fhe

import "errors"

// Gas is the amount of gas charged for executing encrypted operations.
type Gas = uint64

// Canonical names for the FHE primitives covered by the default cost table.
const (
	OpAdd  = "add"
	OpSub  = "sub"
	OpMul  = "mul"
	OpDiv  = "div"
	OpGt   = "gt"
	OpLt   = "lt"
	OpEq   = "eq"
	OpNe   = "ne"
	OpAnd  = "and"
	OpOr   = "or"
	OpNot  = "not"
	OpCast = "cast"
)

var (
	// ErrInvalidParameter is returned for negative or malformed numeric input.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownOperation is returned when an operation has no registered
	// cost. An entry with a zero base cost counts as unregistered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMismatchedInputLength is returned when a usage report's operation
	// and count sequences differ in length.
	ErrMismatchedInputLength = errors.New("mismatched input length")

	// ErrArithmeticOverflow is returned when gas accumulation would exceed
	// the uint64 range. Totals are never silently wrapped.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
