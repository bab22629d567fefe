package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// GenerateKey joins prefix and parts with ':'.
func GenerateKey(prefix string, parts ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

// HashKey returns a short stable hex digest of data.
func HashKey(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
