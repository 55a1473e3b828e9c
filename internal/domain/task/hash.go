package task

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
)

// HashParams returns a stable hash of the canonical form of params.
// Map keys are serialized in sorted order at every nesting level so
// logically identical payloads always produce the same hash.
func HashParams(params map[string]any) string {
	h := fnv.New64a()
	writeCanonical(h, params)
	return fmt.Sprintf("%016x", h.Sum64())
}

type hashWriter interface {
	Write(p []byte) (int, error)
}

func writeCanonical(w hashWriter, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = w.Write([]byte{'{'})
		for _, k := range keys {
			_, _ = w.Write([]byte(k))
			_, _ = w.Write([]byte{':'})
			writeCanonical(w, val[k])
			_, _ = w.Write([]byte{','})
		}
		_, _ = w.Write([]byte{'}'})
	case []any:
		_, _ = w.Write([]byte{'['})
		for _, item := range val {
			writeCanonical(w, item)
			_, _ = w.Write([]byte{','})
		}
		_, _ = w.Write([]byte{']'})
	default:
		// Scalars go through JSON so 1 and "1" hash differently.
		b, err := json.Marshal(val)
		if err != nil {
			b = fmt.Appendf(nil, "%v", val)
		}
		_, _ = w.Write(b)
	}
}
