package fedset

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

func scalarF32(v float32) *tensors.Tensor { return tensors.FromAnyValue(v) }

func requireExampleValues(t *testing.T, want map[string]any, ex Example) {
	t.Helper()
	require.Len(t, ex, len(want))
	for name, v := range want {
		require.Contains(t, ex, name)
		require.Equal(t, v, ex[name].Value(), "field %q", name)
	}
}

func TestInMemoryClientData_InsertionOrder(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"c1": {
			"x": {scalarF32(1), scalarF32(2)},
			"y": {scalarF32(10), scalarF32(20)},
		},
	})
	require.NoError(t, err)

	ctx := context.Background()

	ds, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)

	examples, err := Collect(ctx, ds)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	requireExampleValues(t, map[string]any{"x": float32(1), "y": float32(10)}, examples[0])
	requireExampleValues(t, map[string]any{"x": float32(2), "y": float32(20)}, examples[1])
}

func TestInMemoryClientData_Restartable(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"c1": {"x": {scalarF32(1), scalarF32(2), scalarF32(3)}},
	})
	require.NoError(t, err)

	ctx := context.Background()

	// Two independent calls yield identical contents.
	ds1, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)
	ds2, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)

	first, err := Collect(ctx, ds1)
	require.NoError(t, err)
	second, err := Collect(ctx, ds2)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i]["x"].Value(), second[i]["x"].Value())
	}

	// Reset restarts a drained dataset.
	require.NoError(t, ds1.Reset())
	again, err := Collect(ctx, ds1)
	require.NoError(t, err)
	require.Len(t, again, len(first))
}

func TestInMemoryClientData_UnknownClient(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"c1": {"x": {scalarF32(1)}},
	})
	require.NoError(t, err)

	_, err = cd.DatasetFor(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownClient)

	var uce *UnknownClientError
	require.ErrorAs(t, err, &uce)
	require.Equal(t, "nope", uce.ClientID)
}

func TestInMemoryClientData_EmptyPopulation(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{})
	require.NoError(t, err)

	ctx := context.Background()

	ids, err := cd.ClientIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = cd.DatasetFor(ctx, "anything")
	require.ErrorIs(t, err, ErrUnknownClient)

	_, err = cd.ExampleSchema(ctx)
	require.ErrorIs(t, err, ErrSchemaInference)
}

func TestInMemoryClientData_SchemaUniform(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"a": {"x": {scalarF32(1)}},
		"b": {"x": {scalarF32(2)}},
	})
	require.NoError(t, err)

	sch, err := cd.ExampleSchema(context.Background())
	require.NoError(t, err)
	require.Contains(t, sch, "x")
	require.Empty(t, sch["x"].Dimensions)
}

func TestInMemoryClientData_ContractErrors(t *testing.T) {
	t.Run("ragged columns", func(t *testing.T) {
		_, err := NewInMemoryClientData(map[string]Columns{
			"c1": {
				"x": {scalarF32(1), scalarF32(2)},
				"y": {scalarF32(1)},
			},
		})
		require.Error(t, err)
	})

	t.Run("non-uniform schema across clients", func(t *testing.T) {
		_, err := NewInMemoryClientData(map[string]Columns{
			"a": {"x": {scalarF32(1)}},
			"b": {"y": {scalarF32(1)}},
		})
		require.ErrorIs(t, err, ErrSchemaMismatch)
	})
}

func TestInMemoryClientData_ClientIDsSortedAndStable(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"zeta":  {"x": {scalarF32(1)}},
		"alpha": {"x": {scalarF32(2)}},
		"mid":   {"x": {scalarF32(3)}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	ids1, err := cd.ClientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, ids1)

	ids2, err := cd.ClientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, ids1, ids2)

	// Mutating the returned slice must not affect the store.
	ids1[0] = "mutated"
	ids3, err := cd.ClientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, ids3)
}

func TestCollectAndForEach(t *testing.T) {
	cd, err := NewInMemoryClientData(map[string]Columns{
		"c1": {"x": {scalarF32(1), scalarF32(2)}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	ds, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)

	var seen []float32
	require.NoError(t, ForEach(ctx, ds, func(ex Example) error {
		seen = append(seen, ex["x"].Value().(float32))
		return nil
	}))
	require.Equal(t, []float32{1, 2}, seen)

	// Drained dataset yields io.EOF immediately.
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	// ForEach propagates the callback error.
	require.NoError(t, ds.Reset())
	boom := errors.New("boom")
	require.ErrorIs(t, ForEach(ctx, ds, func(Example) error { return boom }), boom)
}
