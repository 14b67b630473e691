package fedset

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fedset/codec"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestCreateFromDir_JSONLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ada", `{"x": 1, "y": [1, 2]}
{"x": 2, "y": [3, 4]}
`)
	writeFile(t, dir, "bob", `{"x": 3, "y": [5, 6]}
`)

	ctx := context.Background()
	cd, err := CreateFromDir(ctx, dir, JSONLinesFactory(nil))
	require.NoError(t, err)

	ids, err := cd.ClientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ada", "bob"}, ids)

	sch, err := cd.ExampleSchema(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, sch.Fields())
	require.Equal(t, []int{2}, sch["y"].Dimensions)

	ds, err := cd.DatasetFor(ctx, "ada")
	require.NoError(t, err)
	examples, err := Collect(ctx, ds)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	require.Equal(t, float64(1), examples[0]["x"].Value())
	require.Equal(t, []float64{3, 4}, examples[1]["y"].Value())

	// Reset reopens the file and replays from the start.
	require.NoError(t, ds.Reset())
	replay, err := Collect(ctx, ds)
	require.NoError(t, err)
	require.Len(t, replay, 2)
	require.Equal(t, float64(1), replay[0]["x"].Value())

	_, err = cd.DatasetFor(ctx, "carol")
	require.ErrorIs(t, err, ErrUnknownClient)
}

func TestFilePerClientData_RequiresClients(t *testing.T) {
	_, err := NewFilePerClientData(context.Background(), nil, func(context.Context, string) (Dataset, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrSchemaInference)
}

func TestFilePerClientData_SchemaEnforced(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good", `{"x": 1}
`)
	writeFile(t, dir, "odd", `{"x": 1, "extra": 2}
`)

	ctx := context.Background()
	cd, err := CreateFromDir(ctx, dir, JSONLinesFactory(codec.JSON{}))
	require.NoError(t, err)

	// The mismatch surfaces when the non-conforming client is iterated.
	ds, err := cd.DatasetFor(ctx, "odd")
	require.NoError(t, err)
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	ds, err = cd.DatasetFor(ctx, "good")
	require.NoError(t, err)
	examples, err := Collect(ctx, ds)
	require.NoError(t, err)
	require.Len(t, examples, 1)
}

func TestFilePerClientData_CorruptLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c1", `{"x": 1}
this is not json
`)

	ctx := context.Background()
	cd, err := CreateFromDir(ctx, dir, JSONLinesFactory(nil))
	require.NoError(t, err)

	ds, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)

	_, err = ds.Next(ctx)
	require.NoError(t, err)
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, ErrCorruptRecord)
}

// A drained dataset must release its descriptor and stay drained; only Reset
// reopens the file.
func TestFilePerClientData_DrainedDatasetReleasesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c1", `{"x": 1}
`)

	ctx := context.Background()
	cd, err := CreateFromDir(ctx, dir, JSONLinesFactory(nil))
	require.NoError(t, err)

	ds, err := cd.DatasetFor(ctx, "c1")
	require.NoError(t, err)
	_, err = ds.Next(ctx)
	require.NoError(t, err)
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	// Removing the file must not resurrect the exhausted sequence.
	require.NoError(t, os.Remove(filepath.Join(dir, "c1")))
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, io.EOF)

	// Reset goes back to disk, where the file is now gone.
	require.NoError(t, ds.Reset())
	_, err = ds.Next(ctx)
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestFilePerClientData_EmptyFirstClient(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty", "")

	_, err := CreateFromDir(context.Background(), dir, JSONLinesFactory(nil))
	require.ErrorIs(t, err, ErrSchemaInference)
}
