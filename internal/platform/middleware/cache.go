package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/platform/auth"
)

// CacheStore is a byte cache with prefix invalidation. The redis package
// provides the shared implementation; InMemoryCacheStore serves single
// instances and tests.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

type InMemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{entries: make(map[string]cacheEntry), now: time.Now}
}

func (s *InMemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *InMemoryCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{data: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryCacheStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

// teeWriter passes the response through while keeping a copy for the cache.
type teeWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// CacheKey is the key ResponseCache uses for a user and request URI.
func CacheKey(namespace string, userID int64, requestURI string) string {
	return fmt.Sprintf("%s:u%d:%s", namespace, userID, requestURI)
}

// ResponseCache caches successful JSON GET responses per authenticated user
// under namespace. Store failures are logged and the request is served
// uncached.
func ResponseCache(store CacheStore, namespace string, ttl time.Duration, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p := auth.PrincipalFromContext(req.Context())
			if req.Method != http.MethodGet || p == nil {
				return next(c)
			}

			ctx := req.Context()
			key := CacheKey(namespace, p.ID, req.URL.RequestURI())

			data, ok, err := store.Get(ctx, key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("response cache read failed")
			}
			if ok {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.JSONBlob(http.StatusOK, data)
			}

			res := c.Response()
			tee := &teeWriter{ResponseWriter: res.Writer}
			res.Writer = tee
			res.Header().Set("X-Cache", "MISS")
			err = next(c)
			res.Writer = tee.ResponseWriter
			if err != nil {
				return err
			}

			if tee.status == http.StatusOK && tee.buf.Len() > 0 {
				if err := store.Set(ctx, key, tee.buf.Bytes(), ttl); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("response cache write failed")
				}
			}
			return nil
		}
	}
}
