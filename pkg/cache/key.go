package cache

import (
	"strings"
)

// DefaultKeyPrefix namespaces RedisStore keys.
const DefaultKeyPrefix = "requestcache"

// keyspace derives the Redis keys used by a RedisStore.
//
// Format:
//
//	<prefix>:entry:<request key>   JSON-encoded Entry
//	<prefix>:keys                  set of stored request keys
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) entry(key string) string {
	return k.prefix + ":entry:" + key
}

func (k keyspace) index() string {
	return k.prefix + ":keys"
}
