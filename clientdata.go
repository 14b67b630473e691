package fedset

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/hupe1980/fedset/schema"
)

// Example is one labeled data point: a mapping from field name to a tensor
// value with fixed dtype and dimensions per field.
type Example map[string]*tensors.Tensor

// ClientData is the common contract satisfied by all backing stores.
//
// None of the operations mutate shared state observable to other callers;
// each is safe to invoke concurrently for different client ids on the same
// instance.
type ClientData interface {
	// ClientIDs returns all client identifiers known to this instance, in
	// a deterministic, implementation-defined order that is stable across
	// repeated calls within a process lifetime.
	ClientIDs(ctx context.Context) ([]string, error)

	// DatasetFor returns a lazily-evaluated example sequence for one
	// client. No data is read until the sequence is consumed. Fails with
	// an error satisfying errors.Is(err, ErrUnknownClient) when the id is
	// not part of the population.
	DatasetFor(ctx context.Context, clientID string) (Dataset, error)

	// ExampleSchema returns the structural type shared by all examples
	// across all clients of this instance. Fails with ErrSchemaInference
	// when the population is empty.
	ExampleSchema(ctx context.Context) (schema.Schema, error)
}
