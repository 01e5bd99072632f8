package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// canonicalJSON marshals v with sorted map keys and no HTML escaping.
// encoding/json already sorts map keys, nested maps included.
func canonicalJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Unencodable payloads hash by their error text.
		buf.Reset()
		buf.WriteString(err.Error())
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func digest(v any) string {
	sum := sha256.Sum256(canonicalJSON(v))
	return hex.EncodeToString(sum[:])
}

// RawHash identifies a raw record by source and payload only.
func RawHash(source string, payload map[string]any) string {
	return digest(map[string]any{"source": source, "data": payload})
}

// EventHash identifies a timeline event by timestamp, source and description.
// Category and project are not part of the identity.
func EventHash(ts time.Time, source, description string) string {
	return digest(map[string]any{
		"timestamp":   ts.UTC().Format(time.RFC3339Nano),
		"source":      source,
		"description": description,
	})
}
