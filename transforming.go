package fedset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/fedset/schema"
)

// pseudoIDSeparator joins a base client id and an expansion index into a
// pseudo-client id. Decoding splits at the last occurrence, so base ids may
// themselves contain the separator.
const pseudoIDSeparator = "#"

// TransformFunc maps one example to its transformed form for a given
// expansion index. Implementations must be pure and deterministic: the same
// (example, index) pair yields the same output in every process.
type TransformFunc func(ex Example, index int) (Example, error)

// Selector returns the transform applied to all examples of the
// pseudo-client derived from (baseID, index). It must be deterministic and
// must not depend on call order.
type Selector func(baseID string, index int) TransformFunc

// TransformingClientData expands the apparent population of a base
// ClientData by a factor k: every base client spawns k pseudo-clients, each
// with its own deterministic transform. The base data is never duplicated;
// transforms are applied lazily, one example at a time.
//
// The wrapped base is referenced, not owned, and must outlive the wrapper.
type TransformingClientData struct {
	base     ClientData
	k        int
	selector Selector
	sch      schema.Schema // non-nil when transforms change the structure

	mu      sync.Mutex
	baseIDs []string
	baseSet map[string]struct{}
}

var _ ClientData = (*TransformingClientData)(nil)

// TransformingOption configures a TransformingClientData.
type TransformingOption func(*TransformingClientData)

// WithTransformedSchema declares the post-transform example structure. Use
// it when transforms change field shapes or dtypes; the schema must still
// be uniform across all pseudo-clients. By default the base schema is used.
func WithTransformedSchema(sch schema.Schema) TransformingOption {
	return func(cd *TransformingClientData) {
		cd.sch = sch
	}
}

// NewTransformingClientData wraps base so that each of its clients appears
// k times, each expansion transformed by the selector's TransformFunc. A
// nil selector yields identity transforms for all pseudo-clients.
func NewTransformingClientData(base ClientData, k int, selector Selector, opts ...TransformingOption) (*TransformingClientData, error) {
	if base == nil {
		return nil, errors.New("base client data must not be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("expansion factor must be >= 1, got %d", k)
	}
	if selector == nil {
		selector = func(string, int) TransformFunc { return identityTransform }
	}
	cd := &TransformingClientData{base: base, k: k, selector: selector}
	for _, opt := range opts {
		opt(cd)
	}
	return cd, nil
}

func identityTransform(ex Example, _ int) (Example, error) { return ex, nil }

// EncodePseudoID composes the pseudo-client id for (baseID, index).
func EncodePseudoID(baseID string, index int) string {
	return baseID + pseudoIDSeparator + strconv.Itoa(index)
}

// DecodePseudoID splits a pseudo-client id back into (baseID, index). The
// result is syntactic only; callers still validate base membership and
// index range.
func DecodePseudoID(pseudoID string) (baseID string, index int, err error) {
	i := strings.LastIndex(pseudoID, pseudoIDSeparator)
	if i < 0 {
		return "", 0, fmt.Errorf("pseudo id %q has no %q separator", pseudoID, pseudoIDSeparator)
	}
	index, err = strconv.Atoi(pseudoID[i+len(pseudoIDSeparator):])
	if err != nil {
		return "", 0, fmt.Errorf("pseudo id %q has malformed index: %w", pseudoID, err)
	}
	return pseudoID[:i], index, nil
}

// ClientIDs returns k pseudo-ids per base client, grouped by base id in the
// base's order, expansion indices ascending.
func (cd *TransformingClientData) ClientIDs(ctx context.Context) ([]string, error) {
	baseIDs, err := cd.loadBaseIDs(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(baseIDs)*cd.k)
	for _, baseID := range baseIDs {
		for i := 0; i < cd.k; i++ {
			ids = append(ids, EncodePseudoID(baseID, i))
		}
	}
	return ids, nil
}

func (cd *TransformingClientData) loadBaseIDs(ctx context.Context) ([]string, error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.baseSet == nil {
		ids, err := cd.base.ClientIDs(ctx)
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		cd.baseIDs, cd.baseSet = ids, set
	}
	return cd.baseIDs, nil
}

// DatasetFor decodes the pseudo-id, validates it against the base
// population and the expansion range, and returns the base client's dataset
// with the selected transform applied lazily to every example.
func (cd *TransformingClientData) DatasetFor(ctx context.Context, pseudoID string) (Dataset, error) {
	if _, err := cd.loadBaseIDs(ctx); err != nil {
		return nil, err
	}

	baseID, index, err := DecodePseudoID(pseudoID)
	if err != nil {
		return nil, &UnknownClientError{ClientID: pseudoID}
	}
	cd.mu.Lock()
	_, ok := cd.baseSet[baseID]
	cd.mu.Unlock()
	if !ok || index < 0 || index >= cd.k {
		return nil, &UnknownClientError{ClientID: pseudoID}
	}

	inner, err := cd.base.DatasetFor(ctx, baseID)
	if err != nil {
		return nil, err
	}
	return &validatedDataset{
		inner: &transformingDataset{
			inner: inner,
			fn:    cd.selector(baseID, index),
			index: index,
		},
		sch: cd.sch, // nil defers to the base store's own validation
	}, nil
}

// ExampleSchema returns the declared post-transform schema, or the base's
// schema when transforms are structure-preserving.
func (cd *TransformingClientData) ExampleSchema(ctx context.Context) (schema.Schema, error) {
	if cd.sch != nil {
		return cd.sch, nil
	}
	return cd.base.ExampleSchema(ctx)
}

// transformingDataset applies one transform lazily, per produced example.
type transformingDataset struct {
	inner Dataset
	fn    TransformFunc
	index int
}

func (d *transformingDataset) Next(ctx context.Context) (Example, error) {
	ex, err := d.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	out, err := d.fn(ex, d.index)
	if err != nil {
		return nil, fmt.Errorf("transform expansion %d: %w", d.index, err)
	}
	return out, nil
}

func (d *transformingDataset) Reset() error { return d.inner.Reset() }

// SeedFor derives a stable 64-bit seed from a (base client, expansion
// index) pair. The derivation is pure FNV-1a over the pair, so it is
// identical across processes and independent of iteration order.
func SeedFor(baseID string, index int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(baseID))
	var buf [9]byte
	binary.LittleEndian.PutUint64(buf[1:], uint64(index))
	_, _ = h.Write(buf[:]) // leading zero byte separates id from index
	return h.Sum64()
}

// SeededSelector returns a Selector that picks one of the given transforms
// per (baseID, index) pair, using a PCG generator seeded from SeedFor. The
// choice is reproducible in every process and never touches global random
// state.
func SeededSelector(choices ...TransformFunc) Selector {
	if len(choices) == 0 {
		return func(string, int) TransformFunc { return identityTransform }
	}
	return func(baseID string, index int) TransformFunc {
		rng := rand.New(rand.NewPCG(SeedFor(baseID, index), uint64(len(choices))))
		return choices[rng.IntN(len(choices))]
	}
}
