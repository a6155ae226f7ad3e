package middleware

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dotcommander/smithers/internal/adapter"
)

// CacheConfig parameterises the LRU result cache.
type CacheConfig struct {
	Size int
	// ContentHash, when set, keys the cache on the node's content hash
	// instead of prompt+model. Engines pass the freshly-computed hash for
	// the node being dispatched.
	ContentHash string
}

// Cache builds an LRU-backed cache middleware: on hit, returns the cached
// result without invoking downstream; on miss, executes and stores. The
// LRU store is supplied by the caller (see NewCacheStore); every Cache
// built over the same store shares its entries.
func Cache(store *lru.Cache[string, adapter.Result]) Middleware {
	return Middleware{
		Name: "cache",
		WrapExecute: func(ctx context.Context, opts adapter.Options, next DoExecute) (adapter.Result, error) {
			key := cacheKey(opts)
			if cached, ok := store.Get(key); ok {
				return cached, nil
			}
			result, err := next(ctx, opts)
			if err != nil {
				return result, err
			}
			store.Add(key, result)
			return result, nil
		},
	}
}

// NewCacheStore allocates the LRU backing store Cache expects.
func NewCacheStore(size int) (*lru.Cache[string, adapter.Result], error) {
	return lru.New[string, adapter.Result](size)
}

func cacheKey(opts adapter.Options) string {
	if opts.ContentHash != "" {
		return opts.ContentHash
	}
	return fmt.Sprintf("%s:%s", opts.Model, opts.Prompt)
}
