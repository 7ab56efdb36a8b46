package graph

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/tether/graph/refmap"
)

// keySep separates the parts of a composite identifier.
const keySep = "\x1f"

// syntheticID returns the internal identifier of a never persisted record.
// It starts with a NUL byte, which rendered keys never do.
func syntheticID(oid refmap.OID) string {
	return "\x00" + strconv.FormatUint(uint64(oid), 10)
}

// IsSynthetic reports whether id is a synthetic internal identifier.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, "\x00")
}

// renderValue renders one key value. Values are expected in the canonical
// form produced by field.Descriptor.Convert.
func renderValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return hex.EncodeToString(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// renderKey renders the identifier values in the order of names.
func renderKey(names []string, values map[string]any) (string, error) {
	parts := make([]string, len(names))
	for i, n := range names {
		v, ok := values[n]
		if !ok || v == nil {
			return "", fmt.Errorf("graph: identifier field %q is not set", n)
		}
		parts[i] = renderValue(v)
	}
	id := strings.Join(parts, keySep)
	if id == "" || IsSynthetic(id) {
		return "", fmt.Errorf("graph: invalid identifier %q", id)
	}
	return id, nil
}
