// Package sqlitec implements the container contract on top of SQLite.
//
// One table holds all cells, keyed by (group, row, field); payloads are
// gob-serialized tensors, optionally block-compressed. A meta table carries
// a self-describing manifest (codec name, compression), so files remain
// readable regardless of the configured defaults. The driver is pure Go
// (modernc.org/sqlite), no CGo required.
package sqlitec

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/hupe1980/fedset/codec"
	"github.com/hupe1980/fedset/container"
	"github.com/hupe1980/fedset/internal/compress"
)

const manifestVersion = 1

const (
	metaKeyCodec    = "codec"
	metaKeyManifest = "manifest"
)

// manifest describes a container file. It is stored codec-encoded under the
// meta table, next to the plain-text codec name needed to decode it.
type manifest struct {
	Version     int    `json:"version"`
	Compression string `json:"compression"`
}

// Compression selects the block compression applied to cell payloads.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZSTD Compression = "zstd"
)

type options struct {
	codec       codec.Codec
	compression Compression
}

// Option configures Create behavior. Open ignores options: existing files
// are self-describing.
type Option func(*options)

// WithCodec configures the codec used for the manifest of newly-created
// containers. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures the block compression for cell payloads of
// newly-created containers.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// Store is a read-only handle to a SQLite container.
//
// Safe for concurrent reads. Per-group row counts are cached after first
// use; concurrent first loads of the same group are deduplicated.
type Store struct {
	db   *sql.DB
	comp compress.Type

	mu        sync.RWMutex
	rowCounts map[string]int64
	sf        singleflight.Group
}

var _ container.Container = (*Store)(nil)

// Open opens an existing container file.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open container %q: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	m, err := readManifest(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read manifest of %q: %w", path, err)
	}
	comp, err := compress.FromName(m.Compression)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest of %q: %w", path, err)
	}

	return &Store{
		db:        db,
		comp:      comp,
		rowCounts: make(map[string]int64),
	}, nil
}

func readManifest(db *sql.DB) (*manifest, error) {
	var codecName string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaKeyCodec).Scan(&codecName); err != nil {
		return nil, fmt.Errorf("not a fedset container: %w", err)
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("unknown manifest codec %q", codecName)
	}

	var raw []byte
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaKeyManifest).Scan(&raw); err != nil {
		return nil, fmt.Errorf("missing manifest: %w", err)
	}
	var m manifest
	if err := c.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported container version %d", m.Version)
	}
	return &m, nil
}

// Groups returns the group names in first-insertion order.
func (s *Store) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT grp FROM cells GROUP BY grp ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Rows returns the number of rows stored under the group.
func (s *Store) Rows(ctx context.Context, group string) (int64, error) {
	s.mu.RLock()
	if n, ok := s.rowCounts[group]; ok {
		s.mu.RUnlock()
		return n, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.sf.Do(group, func() (any, error) {
		var n int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT row_idx) FROM cells WHERE grp = ?`, group).Scan(&n); err != nil {
			return nil, fmt.Errorf("count rows of %q: %w", group, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %q", container.ErrGroupNotFound, group)
		}
		s.mu.Lock()
		s.rowCounts[group] = n
		s.mu.Unlock()
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Read resolves one cell to its tensor value.
func (s *Store) Read(ctx context.Context, group, field string, row int64) (*tensors.Tensor, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cells WHERE grp = ? AND row_idx = ? AND field = ?`,
		group, row, field).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyMiss(ctx, group, field, row)
	}
	if err != nil {
		return nil, fmt.Errorf("read cell (%q, %q, %d): %w", group, field, row, err)
	}
	return decodeCell(payload, s.comp)
}

// classifyMiss distinguishes an absent group, an out-of-range row, and a
// missing field for a cell that was not found.
func (s *Store) classifyMiss(ctx context.Context, group, field string, row int64) error {
	n, err := s.Rows(ctx, group)
	if err != nil {
		return err // ErrGroupNotFound or query failure
	}
	if row < 0 || row >= n {
		return fmt.Errorf("%w: group %q row %d of %d", container.ErrRowOutOfRange, group, row, n)
	}
	return fmt.Errorf("%w: group %q field %q", container.ErrFieldNotFound, group, field)
}

func decodeCell(payload []byte, comp compress.Type) (*tensors.Tensor, error) {
	raw, err := compress.Decompress(payload, comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}
	t, err := tensors.GobDeserialize(gob.NewDecoder(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}
	return t, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
