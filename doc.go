// Package fedset provides uniform access to per-client datasets for
// federated-learning simulation.
//
// A population of simulated clients is exposed through the ClientData
// contract: enumerate client ids, materialize a lazy Dataset of examples
// for one client, and inspect the shared example schema without reading
// data. Four backing strategies implement the contract:
//
//   - InMemoryClientData: column-oriented data already resident in memory.
//   - RandomAccessFileClientData: an on-disk grouped random-access
//     container (see the container and container/sqlitec packages),
//     opened lazily and streamed row by row.
//   - FilePerClientData: one source (commonly a file) per client, mapped
//     to datasets by a factory function.
//   - TransformingClientData: a decorator that multiplies the apparent
//     population by deterministically transforming a base population
//     into pseudo-clients.
//
// # Quick Start
//
// In-memory:
//
//	cd, _ := fedset.NewInMemoryClientData(map[string]fedset.Columns{
//	    "alice": {"x": {tensors.FromAnyValue(float32(1))}},
//	})
//	ds, _ := cd.DatasetFor(ctx, "alice")
//	for {
//	    ex, err := ds.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    // use ex
//	}
//
// File-backed:
//
//	cd, _ := fedset.NewSQLiteClientData("clients.db", []string{"pixels", "label"})
//	ids, _ := cd.ClientIDs(ctx)
//
// Synthetic expansion:
//
//	big, _ := fedset.NewTransformingClientData(cd, 10, fedset.SeededSelector(rotate90, flip))
//
// Examples are maps from field name to gomlx tensors; all examples of one
// ClientData instance share a single schema (see the schema package).
//
// # Laziness
//
// Datasets are pull-based: no row is read until Next is called, and at most
// one client's data needs to be resident at a time when walking a
// population. A Dataset is restartable via Reset, and a fresh call to
// DatasetFor yields an independent sequence with identical contents.
package fedset
