// Package dberrors holds the error taxonomy of the storage layer.
//
// Recoverable conditions (BlockNotFoundError, DuplicateKeyError,
// CapacityConfigurationError, ErrUnsortedInput) are returned as errors.
// A StorageConsistencyError found while running an operation means the
// on-disk structure is corrupt or the engine was misused; it is raised with
// panic via Fatal so callers cannot carry on past it. Check-style audits
// return it as an ordinary error instead.
package dberrors

import (
	"encoding/hex"
	"fmt"

	"QuadDB/types"

	"github.com/pkg/errors"
)

var (
	ErrUnsortedInput = errors.New("input records are not in strictly increasing key order")
	ErrClosed        = errors.New("block manager is closed")
)

// BlockNotFoundError: the id is unknown, freed or out of range.
type BlockNotFoundError struct {
	Label string
	ID    types.BlockID
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("%s: block %d not found", e.Label, e.ID)
}

func NotFound(label string, id types.BlockID) error {
	return errors.WithStack(&BlockNotFoundError{Label: label, ID: id})
}

// StorageConsistencyError reports a violated structural invariant together
// with where it was found.
type StorageConsistencyError struct {
	Msg   string
	Block types.BlockRef
	Key   []byte
}

func (e *StorageConsistencyError) Error() string {
	s := "storage consistency: " + e.Msg
	if id, ok := e.Block.Get(); ok {
		s += fmt.Sprintf(" [block %d]", id)
	}
	if e.Key != nil {
		s += " [key " + hex.EncodeToString(e.Key) + "]"
	}
	return s
}

func Inconsistent(block types.BlockRef, key []byte, format string, args ...interface{}) *StorageConsistencyError {
	return &StorageConsistencyError{
		Msg:   fmt.Sprintf(format, args...),
		Block: block,
		Key:   key,
	}
}

// Fatal aborts the current operation with a consistency violation.
func Fatal(err *StorageConsistencyError) {
	panic(err)
}

// Fatalf is shorthand for Fatal(Inconsistent(...)).
func Fatalf(block types.BlockRef, key []byte, format string, args ...interface{}) {
	Fatal(Inconsistent(block, key, format, args...))
}

// Recover converts a consistency panic into an error and stores it in *errp.
// Other panics are re-raised. Intended for tools that must report corruption
// and halt rather than crash:
//
//	defer dberrors.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*StorageConsistencyError); ok {
		*errp = ce
		return
	}
	panic(r)
}

type DuplicateKeyError struct {
	Key []byte
}

func (e *DuplicateKeyError) Error() string {
	return "duplicate key " + hex.EncodeToString(e.Key)
}

func Duplicate(key []byte) error {
	return errors.WithStack(&DuplicateKeyError{Key: append([]byte(nil), key...)})
}

// CapacityConfigurationError is raised at construction time when the block
// size, record length and order cannot produce a usable page.
type CapacityConfigurationError struct {
	Msg string
}

func (e *CapacityConfigurationError) Error() string {
	return "capacity configuration: " + e.Msg
}

func Capacity(format string, args ...interface{}) error {
	return errors.WithStack(&CapacityConfigurationError{Msg: fmt.Sprintf(format, args...)})
}

func IsBlockNotFound(err error) bool {
	var e *BlockNotFoundError
	return errors.As(err, &e)
}

func IsDuplicateKey(err error) bool {
	var e *DuplicateKeyError
	return errors.As(err, &e)
}

func IsCapacity(err error) bool {
	var e *CapacityConfigurationError
	return errors.As(err, &e)
}

func IsConsistency(err error) bool {
	var e *StorageConsistencyError
	return errors.As(err, &e)
}
