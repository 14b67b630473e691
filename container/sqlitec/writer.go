package sqlitec

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/hupe1980/fedset/codec"
	"github.com/hupe1980/fedset/internal/compress"
)

// Writer creates a new container file and appends rows to it.
//
// Row indices are assigned per group in append order. Writers are not meant
// for concurrent use with readers of the same file; build the container
// first, then open it for reading.
type Writer struct {
	db      *sql.DB
	c       codec.Codec
	comp    compress.Type
	mu      sync.Mutex
	nextRow map[string]int64
}

// Create creates a new container file. It fails if the file already exists.
func Create(path string, opts ...Option) (*Writer, error) {
	o := options{
		codec:       codec.Default,
		compression: CompressionNone,
	}
	for _, opt := range opts {
		opt(&o)
	}
	comp, err := compress.FromName(string(o.compression))
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create container %q: %w", path, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("create container %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := initSchema(db, o.codec, comp); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Writer{
		db:      db,
		c:       o.codec,
		comp:    comp,
		nextRow: make(map[string]int64),
	}, nil
}

func initSchema(db *sql.DB, c codec.Codec, comp compress.Type) error {
	if _, err := db.Exec(`CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE cells (
		grp TEXT NOT NULL,
		row_idx INTEGER NOT NULL,
		field TEXT NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (grp, row_idx, field)
	)`); err != nil {
		return fmt.Errorf("create cells table: %w", err)
	}

	raw, err := c.Marshal(manifest{
		Version:     manifestVersion,
		Compression: comp.Name(),
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO meta (key, value) VALUES (?, ?), (?, ?)`,
		metaKeyCodec, []byte(c.Name()), metaKeyManifest, raw); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Append adds one row to a group. Fields are inserted in sorted name order
// so files are byte-stable for identical input.
func (w *Writer) Append(group string, row map[string]*tensors.Tensor) error {
	if len(row) == 0 {
		return fmt.Errorf("append to %q: empty row", group)
	}

	fields := make([]string, 0, len(row))
	for name := range row {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.nextRow[group]
	for _, name := range fields {
		payload, err := encodeCell(row[name], w.comp)
		if err != nil {
			return fmt.Errorf("encode cell (%q, %q, %d): %w", group, name, idx, err)
		}
		if _, err := w.db.Exec(
			`INSERT INTO cells (grp, row_idx, field, payload) VALUES (?, ?, ?, ?)`,
			group, idx, name, payload); err != nil {
			return fmt.Errorf("insert cell (%q, %q, %d): %w", group, name, idx, err)
		}
	}
	w.nextRow[group] = idx + 1
	return nil
}

func encodeCell(t *tensors.Tensor, comp compress.Type) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	var buf bytes.Buffer
	if err := t.GobSerialize(gob.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return compress.Compress(buf.Bytes(), comp)
}

// Close flushes and closes the container file.
func (w *Writer) Close() error {
	return w.db.Close()
}
