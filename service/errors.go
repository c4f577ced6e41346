package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures so the HTTP layer can pick a status
// without inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindFileValidation
	KindNotFound
	KindConflict
	KindRender
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFileValidation:
		return "file_validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRender:
		return "render"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Error is returned by ContractService operations
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string // safe to show to callers
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal when err is not an *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-facing text of err
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}

func validationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

func storageError(op, msg string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Message: msg, Err: err}
}

// Store-level sentinels. Repositories return these; the service maps them.
var (
	ErrContractNotFound      = errors.New("contract not found")
	ErrContractAlreadySigned = errors.New("contract already signed")
	ErrContractNotPending    = errors.New("contract is not awaiting signature")
	ErrContractExists        = errors.New("contract already exists")
)
