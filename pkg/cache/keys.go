package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Key derives a stable cache key from the inputs that determine an analysis
// result. File hash order does not affect the key: hashes are sorted before
// digesting.
func Key(strategy string, fileHashes []string, query string, opts any) string {
	sorted := make([]string, len(fileHashes))
	copy(sorted, fileHashes)
	sort.Strings(sorted)

	h := sha256.New()
	fmt.Fprintf(h, "strategy=%s\n", strategy)
	for _, fh := range sorted {
		fmt.Fprintf(h, "file=%s\n", fh)
	}
	fmt.Fprintf(h, "query=%s\n", query)
	if opts != nil {
		// Marshal failures degrade to a type-name discriminator rather
		// than poisoning the key.
		if raw, err := json.Marshal(opts); err == nil {
			h.Write(raw)
		} else {
			fmt.Fprintf(h, "opts=%T\n", opts)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// approxSize estimates the in-memory footprint of a cached value. Strings
// and byte slices count their lengths; everything else falls back to the
// JSON-encoded size.
func approxSize(v any) int64 {
	switch x := v.(type) {
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case rune:
		return int64(utf8.RuneLen(x))
	default:
		if raw, err := json.Marshal(v); err == nil {
			return int64(len(raw))
		}
		return 64 // opaque value, charge a nominal size
	}
}
