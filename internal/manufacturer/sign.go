package manufacturer

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Sign computes the canonical request signature the manufacturer verifies:
// request fields sorted by key name, non-nil scalar values concatenated in
// that order (nested objects and arrays are skipped), then the system name
// and the shared secret appended, MD5 over the result, lower-case hex.
func Sign(fields map[string]any, systemName, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical string
	for _, k := range keys {
		if s, ok := scalarString(fields[k]); ok {
			canonical += s
		}
	}
	canonical += systemName + secret

	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case decimal.Decimal:
		return val.String(), true
	case *string:
		if val == nil {
			return "", false
		}
		return *val, true
	default:
		// nested objects, arrays and anything non-scalar are excluded
		return "", false
	}
}
