package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/hupe1980/fedset"
	"github.com/hupe1980/fedset/container/sqlitec"
)

func main() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "fedset-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "clients.db")

	// --- Build a container: 3 clients, a few rows each ---
	w, err := sqlitec.Create(path, sqlitec.WithCompression(sqlitec.CompressionZSTD))
	if err != nil {
		log.Fatal(err)
	}
	for c := 0; c < 3; c++ {
		client := fmt.Sprintf("client-%d", c)
		for r := 0; r < 2; r++ {
			err := w.Append(client, map[string]*tensors.Tensor{
				"features": tensors.FromAnyValue([]float32{float32(c), float32(r), 0.5}),
				"label":    tensors.FromAnyValue(int64(c % 2)),
			})
			if err != nil {
				log.Fatal(err)
			}
		}
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

	// --- Open it file-backed ---
	cd, err := fedset.NewSQLiteClientData(path, []string{"features", "label"})
	if err != nil {
		log.Fatal(err)
	}
	defer cd.Close()

	sch, err := cd.ExampleSchema(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("schema:", sch)

	// --- Expand 3 clients into 9 pseudo-clients ---
	negate := func(ex fedset.Example, _ int) (fedset.Example, error) {
		out := make(fedset.Example, len(ex))
		for name, t := range ex {
			if name != "features" {
				out[name] = t
				continue
			}
			v := t.Value().([]float32)
			neg := make([]float32, len(v))
			for i, f := range v {
				neg[i] = -f
			}
			out[name] = tensors.FromAnyValue(neg)
		}
		return out, nil
	}
	identity := func(ex fedset.Example, _ int) (fedset.Example, error) { return ex, nil }

	big, err := fedset.NewTransformingClientData(cd, 3, fedset.SeededSelector(identity, negate))
	if err != nil {
		log.Fatal(err)
	}

	ids, err := big.ClientIDs(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("pseudo-clients:", len(ids))

	for _, id := range ids {
		ds, err := big.DatasetFor(ctx, id)
		if err != nil {
			log.Fatal(err)
		}
		err = fedset.ForEach(ctx, ds, func(ex fedset.Example) error {
			fmt.Printf("  %s -> features=%v label=%v\n", id, ex["features"].Value(), ex["label"].Value())
			return nil
		})
		if err != nil {
			log.Fatal(err)
		}
	}
}
