package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a key value scanned from any backend to the canonical
// string form used by lookup maps (e.g. "beginner", "Excel For Beginners" or "12").
//
// Drivers disagree on the Go type of TEXT/CHAR columns (string vs []byte) and
// CHAR(n) columns may come back space-padded, so backends must route every
// scanned key through this helper.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
