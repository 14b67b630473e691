// Package schema describes the structural type of federated examples.
//
// A Schema maps field names to a FieldSpec (element dtype plus per-example
// dimensions). Every example produced by one ClientData instance must
// conform to the same Schema; stores derive it once and validate against it.
package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// ErrMismatch indicates that an example does not conform to a schema.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrMismatch)`.
var ErrMismatch = fmt.Errorf("example schema mismatch")

// ErrEmpty indicates that a schema cannot be derived because there is no
// example to derive it from.
var ErrEmpty = fmt.Errorf("cannot infer schema from empty example")

// FieldSpec describes a single example field: its element type and the
// per-example dimensions. A scalar field has no dimensions.
type FieldSpec struct {
	DType      dtypes.DType
	Dimensions []int
}

// Equal reports whether two field specs describe the same structure.
func (f FieldSpec) Equal(other FieldSpec) bool {
	return f.DType == other.DType && slices.Equal(f.Dimensions, other.Dimensions)
}

// String returns a compact representation, e.g. "float32[28 28]" or "int64".
func (f FieldSpec) String() string {
	if len(f.Dimensions) == 0 {
		return f.DType.String()
	}
	return fmt.Sprintf("%s%v", f.DType, f.Dimensions)
}

// Schema maps field names to their structural type.
type Schema map[string]FieldSpec

// FromExample derives the schema of a single example.
//
// Returns ErrEmpty for an empty example and ErrMismatch when a field holds
// a nil tensor.
func FromExample(ex map[string]*tensors.Tensor) (Schema, error) {
	if len(ex) == 0 {
		return nil, ErrEmpty
	}
	s := make(Schema, len(ex))
	for name, t := range ex {
		if t == nil {
			return nil, fmt.Errorf("%w: field %q is nil", ErrMismatch, name)
		}
		shape := t.Shape()
		s[name] = FieldSpec{
			DType:      shape.DType,
			Dimensions: slices.Clone(shape.Dimensions),
		}
	}
	return s, nil
}

// Validate checks that the example has exactly the schema's fields with
// matching dtypes and dimensions.
func (s Schema) Validate(ex map[string]*tensors.Tensor) error {
	if len(ex) != len(s) {
		return fmt.Errorf("%w: example has %d fields, schema has %d", ErrMismatch, len(ex), len(s))
	}
	for name, spec := range s {
		t, ok := ex[name]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrMismatch, name)
		}
		if t == nil {
			return fmt.Errorf("%w: field %q is nil", ErrMismatch, name)
		}
		shape := t.Shape()
		got := FieldSpec{DType: shape.DType, Dimensions: shape.Dimensions}
		if !spec.Equal(got) {
			return fmt.Errorf("%w: field %q is %s, expected %s", ErrMismatch, name, got, spec)
		}
	}
	return nil
}

// Equal reports whether two schemas describe the same structure.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for name, spec := range s {
		o, ok := other[name]
		if !ok || !spec.Equal(o) {
			return false
		}
	}
	return true
}

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a stable human-readable representation.
func (s Schema) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range s.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", name, s[name])
	}
	b.WriteByte('}')
	return b.String()
}
