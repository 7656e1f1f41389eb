// Package qerr maps structured remote errors onto a closed local taxonomy.
//
// The service reports failures as an exception class name plus a message.
// The class-name set is open ended: new service versions introduce new
// classes, and the mapper must stay total. Recognized classes map to a
// specific Kind; everything else maps to KindRemoteFailure while keeping
// the original class name and message verbatim for diagnostics.
package qerr

import (
	"errors"
	"fmt"
)

// Kind classifies a remote error for handling purposes.
type Kind int

const (
	// KindRemoteFailure is the fallback for unrecognized exception classes.
	KindRemoteFailure Kind = iota
	// KindNotFound means the addressed entity does not exist.
	KindNotFound
	// KindNoSuchProperty means the entity has no property of that name.
	KindNoSuchProperty
	// KindPermissionDenied means the service's policy refused the call.
	KindPermissionDenied
	// KindReadOnly means a write to a non-settable property.
	KindReadOnly
	// KindValidationFailed means the service rejected a submitted value.
	KindValidationFailed
	// KindAlreadyExists means an entity with that identity already exists.
	KindAlreadyExists
	// KindNotHalted means the operation requires a halted machine.
	KindNotHalted
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindRemoteFailure:
		return "remote operation failed"
	case KindNotFound:
		return "not found"
	case KindNoSuchProperty:
		return "no such property"
	case KindPermissionDenied:
		return "permission denied"
	case KindReadOnly:
		return "property is read-only"
	case KindValidationFailed:
		return "validation failed"
	case KindAlreadyExists:
		return "already exists"
	case KindNotHalted:
		return "machine not halted"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind. A *RemoteError matches the sentinel of its
// Kind under errors.Is, so callers never need to inspect class names:
//
//	if errors.Is(err, qerr.ErrNotFound) { ... }
var (
	ErrRemoteFailure    = errors.New("remote operation failed")
	ErrNotFound         = errors.New("entity not found")
	ErrNoSuchProperty   = errors.New("no such property")
	ErrPermissionDenied = errors.New("permission denied")
	ErrReadOnly         = errors.New("property is read-only")
	ErrValidationFailed = errors.New("validation failed")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrNotHalted        = errors.New("machine not halted")
)

var kindSentinels = map[Kind]error{
	KindRemoteFailure:    ErrRemoteFailure,
	KindNotFound:         ErrNotFound,
	KindNoSuchProperty:   ErrNoSuchProperty,
	KindPermissionDenied: ErrPermissionDenied,
	KindReadOnly:         ErrReadOnly,
	KindValidationFailed: ErrValidationFailed,
	KindAlreadyExists:    ErrAlreadyExists,
	KindNotHalted:        ErrNotHalted,
}

// classKinds maps known exception class names to local kinds. The table is
// exact-match: best-effort substring matching against an open set of names
// is how clients end up misclassifying new errors.
var classKinds = map[string]Kind{
	"QubesVMNotFoundError":     KindNotFound,
	"QubesPoolNotFoundError":   KindNotFound,
	"QubesLabelNotFoundError":  KindNotFound,
	"QubesNoSuchPropertyError": KindNoSuchProperty,
	"PermissionDenied":         KindPermissionDenied,
	"SecurityError":            KindPermissionDenied,
	"QubesPropertyAccessError": KindReadOnly,
	// Older daemons surface read-only writes as a bare AttributeError.
	"AttributeError":          KindReadOnly,
	"QubesValueError":         KindValidationFailed,
	"QubesPropertyValueError": KindValidationFailed,
	"QubesVMInUseError":       KindAlreadyExists,
	"QubesVMNotHaltedError":   KindNotHalted,
}

// RemoteError is a structured failure reported by the service. Message is
// preserved verbatim from the wire, including the empty string. Traceback
// is diagnostic only and never drives control flow.
type RemoteError struct {
	Kind      Kind
	Class     string
	Message   string
	Traceback string
}

// FromWire builds a RemoteError from the decoded fields of an error
// response. The mapping is total: every class name produces some error.
func FromWire(class, message, traceback string) *RemoteError {
	kind, ok := classKinds[class]
	if !ok {
		kind = KindRemoteFailure
	}
	return &RemoteError{
		Kind:      kind,
		Class:     class,
		Message:   message,
		Traceback: traceback,
	}
}

// Error formats the failure. The original message is reported verbatim;
// nothing is invented for classes the mapper does not recognize.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Class)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Class, e.Message)
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *RemoteError) Is(target error) bool {
	return target == kindSentinels[e.Kind]
}

// AsRemote unwraps err to a *RemoteError if one is in its chain.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
