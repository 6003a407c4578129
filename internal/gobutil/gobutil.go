// Package gobutil centralizes the small encoding/gob round-trip helper used
// by every subsystem's save-state snapshot.
package gobutil

import (
	"bytes"
	"encoding/gob"
)

// Encode serializes v into a byte slice, returning nil on failure so callers
// can treat save-state encoding as a total operation.
func Encode(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Decode deserializes data into v, reporting whether it succeeded.
func Decode(data []byte, v any) bool {
	if len(data) == 0 {
		return false
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v) == nil
}
