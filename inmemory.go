package fedset

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/hupe1980/fedset/schema"
)

// Columns holds one client's examples in column-oriented form: for each
// field, a slice of per-row tensor values. All columns of one client must
// have the same length (one entry per example).
type Columns map[string][]*tensors.Tensor

// InMemoryClientData serves a population whose data is already resident in
// memory. Rows are assembled lazily, one index at a time across all columns;
// the table is never transposed eagerly.
type InMemoryClientData struct {
	ids  []string
	data map[string]Columns
	sch  schema.Schema // nil when the population is empty
}

var _ ClientData = (*InMemoryClientData)(nil)

// NewInMemoryClientData builds a store from a mapping of client id to
// column-oriented example data. An empty mapping is legal: ClientIDs returns
// an empty sequence and ExampleSchema fails with ErrSchemaInference.
//
// The schema is inferred from the first row of the first client (in id
// order) that has data; column lengths and schema uniformity across clients
// are validated up front, since non-uniform schemas are a contract error.
func NewInMemoryClientData(data map[string]Columns) (*InMemoryClientData, error) {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cd := &InMemoryClientData{ids: ids, data: data}
	for _, id := range ids {
		cols := data[id]
		rows, err := columnRows(cols)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", id, err)
		}
		if rows == 0 {
			continue
		}
		first := rowAt(cols, 0)
		if cd.sch == nil {
			sch, err := schema.FromExample(first)
			if err != nil {
				return nil, fmt.Errorf("client %q: %w", id, err)
			}
			cd.sch = sch
			continue
		}
		if err := cd.sch.Validate(first); err != nil {
			return nil, fmt.Errorf("client %q: %w", id, err)
		}
	}
	return cd, nil
}

// ClientIDs returns the client ids in sorted order.
func (cd *InMemoryClientData) ClientIDs(_ context.Context) ([]string, error) {
	ids := make([]string, len(cd.ids))
	copy(ids, cd.ids)
	return ids, nil
}

// DatasetFor returns a lazy row-at-a-time view over the client's columns.
func (cd *InMemoryClientData) DatasetFor(_ context.Context, clientID string) (Dataset, error) {
	cols, ok := cd.data[clientID]
	if !ok {
		return nil, &UnknownClientError{ClientID: clientID}
	}
	rows, err := columnRows(cols)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", clientID, err)
	}
	return &validatedDataset{
		inner: &columnsDataset{cols: cols, rows: rows},
		sch:   cd.sch,
	}, nil
}

// ExampleSchema returns the schema inferred at construction.
func (cd *InMemoryClientData) ExampleSchema(_ context.Context) (schema.Schema, error) {
	if cd.sch == nil {
		return nil, ErrSchemaInference
	}
	return cd.sch, nil
}

// columnRows returns the shared length of all columns.
func columnRows(cols Columns) (int, error) {
	rows := -1
	for name, col := range cols {
		if rows == -1 {
			rows = len(col)
			continue
		}
		if len(col) != rows {
			return 0, fmt.Errorf("column %q has %d rows, expected %d", name, len(col), rows)
		}
	}
	if rows == -1 {
		rows = 0
	}
	return rows, nil
}

// rowAt assembles the example at one row index by reading the same index
// across every column.
func rowAt(cols Columns, i int) Example {
	ex := make(Example, len(cols))
	for name, col := range cols {
		ex[name] = col[i]
	}
	return ex
}

// columnsDataset walks a client's columns one row index at a time.
type columnsDataset struct {
	cols Columns
	rows int
	pos  int
}

func (d *columnsDataset) Next(ctx context.Context) (Example, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.pos >= d.rows {
		return nil, io.EOF
	}
	ex := rowAt(d.cols, d.pos)
	d.pos++
	return ex, nil
}

func (d *columnsDataset) Reset() error {
	d.pos = 0
	return nil
}
