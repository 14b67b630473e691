// Package container defines the grouped random-access boundary consumed by
// file-backed client data.
//
// A Container is an opaque key-value store whose top-level keys are groups
// (one per client). Each group holds a fixed number of rows, and each
// (group, field, row) cell resolves to one tensor value. The byte-level file
// format is an implementation detail of each Container.
package container

import (
	"context"
	"errors"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

var (
	// ErrGroupNotFound is returned when a group name is not present.
	ErrGroupNotFound = errors.New("container: group not found")

	// ErrFieldNotFound is returned when a field is not present in a group.
	ErrFieldNotFound = errors.New("container: field not found")

	// ErrRowOutOfRange is returned for a row index outside [0, Rows).
	ErrRowOutOfRange = errors.New("container: row index out of range")

	// ErrCorrupt is returned when a cell payload cannot be decoded.
	ErrCorrupt = errors.New("container: corrupt cell payload")
)

// Container is a grouped random-access store.
//
// Implementations must support concurrent reads; Close releases the
// underlying handle and invalidates the instance.
type Container interface {
	// Groups returns the top-level group names in the container's native
	// iteration order. The order must be stable across calls.
	Groups(ctx context.Context) ([]string, error)

	// Rows returns the number of rows stored under the group.
	Rows(ctx context.Context, group string) (int64, error)

	// Read resolves one (group, field, row) cell to its tensor value.
	Read(ctx context.Context, group, field string, row int64) (*tensors.Tensor, error)

	// Close releases the underlying storage handle.
	Close() error
}
