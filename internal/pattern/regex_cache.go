package pattern

import (
	"fmt"
	"regexp"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/dgraph-io/ristretto"
)

// RegexCache keeps compiled case-insensitive rule patterns so repeated
// evaluations over a session do not recompile them.
type RegexCache struct {
	cache *ristretto.Cache
}

// NewRegexCache creates a cache holding up to maxPatterns compiled patterns.
func NewRegexCache(maxPatterns int64) (*RegexCache, error) {
	if maxPatterns <= 0 {
		maxPatterns = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxPatterns * 10,
		MaxCost:     maxPatterns,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &RegexCache{cache: cache}, nil
}

// Compile returns the compiled form of pattern, compiling on a miss.
// A nil cache compiles every time.
func (c *RegexCache) Compile(pattern string) (*regexp.Regexp, error) {
	if c == nil {
		return common.CompileFold(pattern)
	}
	if v, ok := c.cache.Get(pattern); ok {
		if re, ok := v.(*regexp.Regexp); ok {
			return re, nil
		}
	}
	re, err := common.CompileFold(pattern)
	if err != nil {
		return nil, err
	}
	c.cache.Set(pattern, re, 1)
	return re, nil
}

// Close releases the cache's background goroutines.
func (c *RegexCache) Close() {
	if c != nil {
		c.cache.Close()
	}
}
