package state

import (
	"strings"
)

// DefaultRedisPrefix namespaces bookmark keys in Redis.
const DefaultRedisPrefix = "loopreturns:state"

// Key identifies the bookmark of a stream in a key-value backend.
type Key struct {
	// Prefix namespaces the key (e.g. "loopreturns:state")
	Prefix string

	// Stream is the stream name (e.g. "returns")
	Stream string
}

// String generates the key string.
// Format: prefix:stream
//
// Example:
//
//	loopreturns:state:returns
func (k Key) String() string {
	prefix := strings.Trim(k.Prefix, ":")
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return prefix + ":" + strings.TrimSpace(k.Stream)
}
