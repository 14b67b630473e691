package fedset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/fedset/container"
	"github.com/hupe1980/fedset/container/sqlitec"
	"github.com/hupe1980/fedset/schema"
)

// Opener opens the backing container. It is invoked at most once per
// RandomAccessFileClientData instance, on first access.
type Opener func(ctx context.Context) (container.Container, error)

// RandomAccessFileClientData serves a population stored in a grouped
// random-access container: one group per client, one row per example.
//
// The container handle is opened lazily on first access and cached for the
// instance's lifetime; concurrent first accesses do not race on handle
// creation. Rows are read one at a time as the dataset is consumed, never
// as a bulk pre-read of a whole group.
type RandomAccessFileClientData struct {
	opener Opener
	fields []string

	openOnce sync.Once
	cont     container.Container
	openErr  error

	mu    sync.Mutex
	ids   []string
	idSet map[string]struct{}
	sch   schema.Schema
}

var _ ClientData = (*RandomAccessFileClientData)(nil)

// NewRandomAccessFileClientData builds a store over any container
// implementation. fields declares which fields to read for every group and
// the order in which they are read.
func NewRandomAccessFileClientData(opener Opener, fields []string) (*RandomAccessFileClientData, error) {
	if opener == nil {
		return nil, errors.New("opener must not be nil")
	}
	if len(fields) == 0 {
		return nil, errors.New("at least one field is required")
	}
	return &RandomAccessFileClientData{
		opener: opener,
		fields: append([]string(nil), fields...),
	}, nil
}

// NewSQLiteClientData is a convenience constructor over a sqlitec container
// file. The file is opened lazily on first access.
func NewSQLiteClientData(path string, fields []string) (*RandomAccessFileClientData, error) {
	return NewRandomAccessFileClientData(func(_ context.Context) (container.Container, error) {
		return sqlitec.Open(path)
	}, fields)
}

// open opens and caches the container handle. The handle is created at most
// once per instance, regardless of how many goroutines hit first access.
func (cd *RandomAccessFileClientData) open(ctx context.Context) (container.Container, error) {
	cd.openOnce.Do(func() {
		cont, err := cd.opener(ctx)
		if err != nil {
			cd.openErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			return
		}
		cd.cont = cont
	})
	return cd.cont, cd.openErr
}

// Close releases the cached container handle and invalidates the instance:
// datasets already handed out stop working and later accesses fail with
// ErrStorageUnavailable instead of reopening.
//
// Running the no-op through openOnce synchronizes with a concurrent first
// access, so a handle being opened right now is either observed and closed
// here or the open never happens at all.
func (cd *RandomAccessFileClientData) Close() error {
	cd.openOnce.Do(func() {
		cd.openErr = fmt.Errorf("%w: client data closed", ErrStorageUnavailable)
	})
	if cd.cont != nil {
		return cd.cont.Close()
	}
	return nil
}

// ClientIDs returns the container's group names in its native iteration
// order. The order is cached on first use.
func (cd *RandomAccessFileClientData) ClientIDs(ctx context.Context) ([]string, error) {
	if err := cd.loadIDs(ctx); err != nil {
		return nil, err
	}
	cd.mu.Lock()
	defer cd.mu.Unlock()
	ids := make([]string, len(cd.ids))
	copy(ids, cd.ids)
	return ids, nil
}

func (cd *RandomAccessFileClientData) loadIDs(ctx context.Context) error {
	cd.mu.Lock()
	loaded := cd.idSet != nil
	cd.mu.Unlock()
	if loaded {
		return nil
	}

	cont, err := cd.open(ctx)
	if err != nil {
		return err
	}
	ids, err := cont.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list client ids: %w", err)
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	cd.mu.Lock()
	if cd.idSet == nil {
		cd.ids, cd.idSet = ids, idSet
	}
	cd.mu.Unlock()
	return nil
}

// DatasetFor streams the client's rows, reading the declared fields in the
// declared order for each row index. Row reads happen only as the sequence
// is consumed.
func (cd *RandomAccessFileClientData) DatasetFor(ctx context.Context, clientID string) (Dataset, error) {
	if err := cd.loadIDs(ctx); err != nil {
		return nil, err
	}
	cd.mu.Lock()
	_, ok := cd.idSet[clientID]
	cd.mu.Unlock()
	if !ok {
		return nil, &UnknownClientError{ClientID: clientID}
	}
	cont, err := cd.open(ctx)
	if err != nil {
		return nil, err
	}
	return &containerDataset{
		cont:   cont,
		group:  clientID,
		fields: cd.fields,
		rows:   -1,
	}, nil
}

// ExampleSchema derives the schema from the first row of the first client
// and caches it. Fails with ErrSchemaInference when the population is empty.
func (cd *RandomAccessFileClientData) ExampleSchema(ctx context.Context) (schema.Schema, error) {
	cd.mu.Lock()
	if cd.sch != nil {
		sch := cd.sch
		cd.mu.Unlock()
		return sch, nil
	}
	cd.mu.Unlock()

	if err := cd.loadIDs(ctx); err != nil {
		return nil, err
	}
	cd.mu.Lock()
	empty := len(cd.ids) == 0
	var first string
	if !empty {
		first = cd.ids[0]
	}
	cd.mu.Unlock()
	if empty {
		return nil, ErrSchemaInference
	}

	ds, err := cd.DatasetFor(ctx, first)
	if err != nil {
		return nil, err
	}
	ex, err := ds.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: client %q has no rows", ErrSchemaInference, first)
	}
	if err != nil {
		return nil, err
	}
	sch, err := schema.FromExample(ex)
	if err != nil {
		return nil, err
	}

	cd.mu.Lock()
	if cd.sch == nil {
		cd.sch = sch
	}
	sch = cd.sch
	cd.mu.Unlock()
	return sch, nil
}

// containerDataset streams one group's rows from a container. The row count
// is resolved on first Next, so constructing the dataset reads nothing.
type containerDataset struct {
	cont   container.Container
	group  string
	fields []string
	rows   int64 // -1 until resolved
	pos    int64
}

func (d *containerDataset) Next(ctx context.Context) (Example, error) {
	if d.rows < 0 {
		n, err := d.cont.Rows(ctx, d.group)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", d.group, err)
		}
		d.rows = n
	}
	if d.pos >= d.rows {
		return nil, io.EOF
	}

	ex := make(Example, len(d.fields))
	for _, field := range d.fields {
		t, err := d.cont.Read(ctx, d.group, field, d.pos)
		if err != nil {
			if errors.Is(err, container.ErrCorrupt) {
				return nil, &CorruptRecordError{Group: d.group, Field: field, Row: d.pos, cause: err}
			}
			return nil, fmt.Errorf("client %q field %q row %d: %w", d.group, field, d.pos, err)
		}
		ex[field] = t
	}
	d.pos++
	return ex, nil
}

func (d *containerDataset) Reset() error {
	d.pos = 0
	return nil
}
