package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Use it when portability matters more than throughput; persisted files
// record the codec name, so containers written with JSON stay readable
// regardless of the configured default.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// This affects newly-created containers and per-client files. Existing
// persisted files are self-describing (they store the codec name) and are
// opened by selecting the appropriate codec by name.
var Default Codec = GoJSON{}
