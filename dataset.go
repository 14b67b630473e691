package fedset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/fedset/schema"
)

// Dataset is an ordered, finite, restartable sequence of examples scoped to
// one client. Production is pull-based: Next may block on I/O but reads at
// most one row per call.
//
// Datasets are not safe for concurrent use; obtain one Dataset per
// goroutine via ClientData.DatasetFor.
type Dataset interface {
	// Next produces the next example. Returns io.EOF after the last one.
	Next(ctx context.Context) (Example, error)

	// Reset restarts the sequence from the first example.
	Reset() error
}

// Collect drains the dataset into a slice.
//
// Intended for small datasets and tests; it defeats the one-row-at-a-time
// memory profile of Next.
func Collect(ctx context.Context, d Dataset) ([]Example, error) {
	var out []Example
	for {
		ex, err := d.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
}

// ForEach applies fn to every example in order, stopping at the first error.
func ForEach(ctx context.Context, d Dataset, fn func(Example) error) error {
	for {
		ex, err := d.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ex); err != nil {
			return err
		}
	}
}

// validatedDataset checks every produced example against a schema and fails
// fast on the first non-conforming one. A nil schema disables the check.
type validatedDataset struct {
	inner Dataset
	sch   schema.Schema
}

func (d *validatedDataset) Next(ctx context.Context) (Example, error) {
	ex, err := d.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	if d.sch != nil {
		if err := d.sch.Validate(ex); err != nil {
			return nil, fmt.Errorf("contract violation: %w", err)
		}
	}
	return ex, nil
}

func (d *validatedDataset) Reset() error { return d.inner.Reset() }
