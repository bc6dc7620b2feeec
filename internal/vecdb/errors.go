package vecdb

import "fmt"

// Kind identifies the category of a vecdb error so callers can branch
// on it with errors.Is against the sentinel values below.
type Kind uint8

const (
	KindDimensionMismatch Kind = iota
	KindDuplicateID
	KindCollectionExists
	KindCollectionNotFound
	KindDeserialization
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindDuplicateID:
		return "duplicate_id"
	case KindCollectionExists:
		return "collection_exists"
	case KindCollectionNotFound:
		return "collection_not_found"
	case KindDeserialization:
		return "deserialization"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by this package. Callers
// should match it with errors.Is against one of the Err* sentinels,
// which compare equal to any *Error of the same Kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("vecdb: %s: %s", e.Kind, e.Message)
}

// Is reports whether target is a sentinel for the same Kind, so that
// errors.Is(err, vecdb.ErrCollectionNotFound) works regardless of the
// Message text carried by a concrete error value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for use with errors.Is. Their Message field is irrelevant
// to comparison — only Kind is checked by (*Error).Is.
var (
	ErrDimensionMismatch  = &Error{Kind: KindDimensionMismatch}
	ErrDuplicateID        = &Error{Kind: KindDuplicateID}
	ErrCollectionExists   = &Error{Kind: KindCollectionExists}
	ErrCollectionNotFound = &Error{Kind: KindCollectionNotFound}
	ErrDeserialization    = &Error{Kind: KindDeserialization}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
)
