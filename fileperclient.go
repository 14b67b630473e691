package fedset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/hupe1980/fedset/codec"
	"github.com/hupe1980/fedset/schema"
)

// DatasetFactory produces the dataset for one client id. It is called once
// per DatasetFor request, so returned datasets need not be restartable
// beyond their own Reset.
type DatasetFactory func(ctx context.Context, clientID string) (Dataset, error)

// FilePerClientData maps a set of per-client sources (commonly one file per
// client) to datasets via a factory function.
//
// The example schema is captured from the first client at construction, and
// every dataset handed out afterwards is checked against it example by
// example: a factory producing differently-structured data for some client
// is a contract error surfaced at iteration, not silently propagated.
type FilePerClientData struct {
	ids    []string
	idSet  map[string]struct{}
	create DatasetFactory
	sch    schema.Schema
}

var _ ClientData = (*FilePerClientData)(nil)

// NewFilePerClientData builds a store from explicit client ids and a
// dataset factory. At least one client id is required; the first client's
// first example determines the instance schema.
func NewFilePerClientData(ctx context.Context, clientIDs []string, create DatasetFactory) (*FilePerClientData, error) {
	if len(clientIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one client id is required", ErrSchemaInference)
	}
	if create == nil {
		return nil, errors.New("dataset factory must not be nil")
	}

	ids := append([]string(nil), clientIDs...)
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	ds, err := create(ctx, ids[0])
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", ids[0], err)
	}
	ex, err := ds.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: client %q has no examples", ErrSchemaInference, ids[0])
	}
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", ids[0], err)
	}
	sch, err := schema.FromExample(ex)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", ids[0], err)
	}
	// The probe dataset is discarded; Reset releases whatever it holds open.
	if err := ds.Reset(); err != nil {
		return nil, fmt.Errorf("client %q: %w", ids[0], err)
	}

	return &FilePerClientData{ids: ids, idSet: idSet, create: create, sch: sch}, nil
}

// CreateFromDir builds a FilePerClientData from a directory: every regular
// file becomes one client, with the filename as the client id. The search
// is not recursive.
func CreateFromDir(ctx context.Context, dir string, create func(ctx context.Context, path string) (Dataset, error)) (*FilePerClientData, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ids = append(ids, e.Name())
	}
	return NewFilePerClientData(ctx, ids, func(ctx context.Context, clientID string) (Dataset, error) {
		return create(ctx, filepath.Join(dir, clientID))
	})
}

// ClientIDs returns the client ids in construction order.
func (cd *FilePerClientData) ClientIDs(_ context.Context) ([]string, error) {
	ids := make([]string, len(cd.ids))
	copy(ids, cd.ids)
	return ids, nil
}

// DatasetFor invokes the factory and wraps the result with per-example
// schema validation against the instance schema.
func (cd *FilePerClientData) DatasetFor(ctx context.Context, clientID string) (Dataset, error) {
	if _, ok := cd.idSet[clientID]; !ok {
		return nil, &UnknownClientError{ClientID: clientID}
	}
	ds, err := cd.create(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", clientID, err)
	}
	return &validatedDataset{inner: ds, sch: cd.sch}, nil
}

// ExampleSchema returns the schema captured at construction.
func (cd *FilePerClientData) ExampleSchema(_ context.Context) (schema.Schema, error) {
	return cd.sch, nil
}

// JSONLinesFactory adapts CreateFromDir to files holding one JSON object
// per line. Each object maps field names to numbers, booleans, or flat
// numeric arrays; objects become examples in line order.
func JSONLinesFactory(c codec.Codec) func(ctx context.Context, path string) (Dataset, error) {
	if c == nil {
		c = codec.Default
	}
	return func(_ context.Context, path string) (Dataset, error) {
		return &jsonlDataset{path: path, c: c}, nil
	}
}

// jsonlDataset streams a JSON-lines file. The file is opened on first Next,
// closed as soon as the sequence is terminal, and reopened on Reset, so
// constructing the dataset reads nothing and a drained dataset holds no
// descriptor.
type jsonlDataset struct {
	path    string
	c       codec.Codec
	file    *os.File
	scanner *bufio.Scanner
	line    int64
	done    bool
}

func (d *jsonlDataset) Next(ctx context.Context) (Example, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.done {
		return nil, io.EOF
	}
	if d.file == nil {
		f, err := os.Open(d.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		d.file = f
		d.scanner = bufio.NewScanner(f)
		d.line = 0
	}

	for d.scanner.Scan() {
		d.line++
		raw := d.scanner.Bytes()
		if len(raw) == 0 {
			continue // tolerate blank lines, e.g. a trailing newline
		}
		var obj map[string]any
		if err := d.c.Unmarshal(raw, &obj); err != nil {
			return nil, d.fail(&CorruptRecordError{Group: d.path, Row: d.line - 1, cause: err})
		}
		ex, err := exampleFromJSONObject(obj)
		if err != nil {
			return nil, d.fail(&CorruptRecordError{Group: d.path, Row: d.line - 1, cause: err})
		}
		return ex, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, d.fail(err)
	}
	d.finish()
	return nil, io.EOF
}

// fail terminates the sequence on a read error and forwards the error.
func (d *jsonlDataset) fail(err error) error {
	d.finish()
	return err
}

// finish releases the descriptor. Only Reset makes the dataset produce
// examples again.
func (d *jsonlDataset) finish() {
	if d.file != nil {
		_ = d.file.Close()
		d.file, d.scanner = nil, nil
	}
	d.done = true
}

func (d *jsonlDataset) Reset() error {
	d.done = false
	if d.file != nil {
		err := d.file.Close()
		d.file, d.scanner = nil, nil
		return err
	}
	return nil
}

// exampleFromJSONObject converts decoded JSON values into tensors. Numbers
// become float64 scalars, booleans bool scalars, and homogeneous numeric
// arrays float64 vectors.
func exampleFromJSONObject(obj map[string]any) (Example, error) {
	if len(obj) == 0 {
		return nil, errors.New("empty object")
	}
	ex := make(Example, len(obj))
	for name, v := range obj {
		switch val := v.(type) {
		case float64:
			ex[name] = tensors.FromAnyValue(val)
		case bool:
			ex[name] = tensors.FromAnyValue(val)
		case []any:
			vec := make([]float64, len(val))
			for i, elem := range val {
				f, ok := elem.(float64)
				if !ok {
					return nil, fmt.Errorf("field %q element %d is %T, expected number", name, i, elem)
				}
				vec[i] = f
			}
			ex[name] = tensors.FromAnyValue(vec)
		default:
			return nil, fmt.Errorf("field %q has unsupported type %T", name, v)
		}
	}
	return ex, nil
}
