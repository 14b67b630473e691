package fedset

import (
	"errors"
	"fmt"

	"github.com/hupe1980/fedset/schema"
)

var (
	// ErrUnknownClient is returned when a requested client id is not part
	// of the population, or a pseudo-id cannot be decoded to a valid
	// (base id, expansion index) pair.
	ErrUnknownClient = errors.New("unknown client id")

	// ErrSchemaInference is returned when the example schema cannot be
	// derived because the client population is empty.
	ErrSchemaInference = errors.New("cannot infer example schema from empty client population")

	// ErrStorageUnavailable is returned when a backing container cannot be
	// opened. Retry policy is owned by the caller.
	ErrStorageUnavailable = errors.New("backing container unavailable")

	// ErrCorruptRecord is returned when a stored row cannot be decoded
	// into the declared field types.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrSchemaMismatch indicates a contract violation: an example does
	// not conform to the instance schema. The default maps to
	// schema.ErrMismatch so both sentinels match with errors.Is.
	ErrSchemaMismatch = schema.ErrMismatch
)

// UnknownClientError reports the client id that was requested but not found.
//
// Satisfies errors.Is(err, ErrUnknownClient).
type UnknownClientError struct {
	ClientID string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("unknown client id %q", e.ClientID)
}

func (e *UnknownClientError) Is(target error) bool { return target == ErrUnknownClient }

// CorruptRecordError reports the location of a row that failed to decode.
//
// Satisfies errors.Is(err, ErrCorruptRecord). The original underlying error
// (if any) can be accessed via errors.Unwrap.
type CorruptRecordError struct {
	Group string
	Field string
	Row   int64
	cause error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record: group %q field %q row %d: %v", e.Group, e.Field, e.Row, e.cause)
}

func (e *CorruptRecordError) Unwrap() error { return e.cause }

func (e *CorruptRecordError) Is(target error) bool { return target == ErrCorruptRecord }
