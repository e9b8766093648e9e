package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 200

// CacheStore keeps response bodies in redis so every replica sees the same
// entries and a single invalidation clears them all.
type CacheStore struct {
	rdb    goredis.Cmdable
	prefix string
}

func NewCacheStore(rdb goredis.Cmdable, prefix string) *CacheStore {
	return &CacheStore{rdb: rdb, prefix: prefix}
}

func (s *CacheStore) key(k string) string { return s.prefix + k }

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

// DeletePrefix unlinks every key starting with prefix. It walks the keyspace
// with SCAN rather than KEYS so a large cache does not block the server.
func (s *CacheStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := globEscape(s.key(prefix)) + "*"
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.rdb.Unlink(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// globEscape quotes the characters SCAN MATCH treats as pattern syntax.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
