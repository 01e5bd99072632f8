package transform

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pbaille/timeline/internal/categorize"
)

// Payload values come back from JSON, so numbers arrive as float64 and
// lists as []any.

func str(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return strings.TrimSpace(strings.Trim(mustJSON(v), `"`))
	}
}

func strOr(p map[string]any, key, def string) string {
	if s := str(p, key); s != "" {
		return s
	}
	return def
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

func num(p map[string]any, key string) int {
	return toInt(p[key])
}

func boolean(p map[string]any, key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return toInt(v) != 0
	}
}

// fileChanges reads the "files" list of a git payload.
func fileChanges(p map[string]any) []categorize.FileChange {
	switch list := p["files"].(type) {
	case []categorize.FileChange:
		return list
	case []any:
		out := make([]categorize.FileChange, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, categorize.FileChange{
				Path:       str(m, "path"),
				Insertions: num(m, "insertions"),
				Deletions:  num(m, "deletions"),
			})
		}
		return out
	case []map[string]any:
		out := make([]categorize.FileChange, 0, len(list))
		for _, m := range list {
			out = append(out, categorize.FileChange{
				Path:       str(m, "path"),
				Insertions: num(m, "insertions"),
				Deletions:  num(m, "deletions"),
			})
		}
		return out
	default:
		return nil
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
