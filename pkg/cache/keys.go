package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash computes the SHA-256 hash of data as a 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RenderKey keys a rendered artifact by the hash of its DOT source and the
// output format. Identical documents share one entry per format.
func RenderKey(dotSrc, format string) string {
	return fmt.Sprintf("render:%s:%s", format, Hash([]byte(dotSrc)))
}

// GraphKey keys an emitted DOT document by the hashes of its inputs and the
// emission options. slotHash is empty when no slot inventory was supplied.
func GraphKey(deviceHash, slotHash string, clusters bool) string {
	return fmt.Sprintf("graph:%s:%s:clusters=%t", deviceHash, slotHash, clusters)
}

// Scoped prefixes keys for namespace isolation, e.g. per release so stale
// artifacts do not survive an upgrade.
func Scoped(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
