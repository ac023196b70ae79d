package mapping

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
)

// PatternMatcher compiles slot name patterns once and caches them. Patterns
// match case-insensitively. It is safe for concurrent use.
type PatternMatcher struct {
	cache  map[string]*regexp.Regexp
	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64
}

// NewPatternMatcher creates a PatternMatcher with an empty cache.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{cache: make(map[string]*regexp.Regexp)}
}

// CompileAndCache compiles pattern and caches the result.
func (pm *PatternMatcher) CompileAndCache(pattern string) (*regexp.Regexp, error) {
	pm.mu.RLock()
	cached, ok := pm.cache[pattern]
	pm.mu.RUnlock()

	if ok {
		pm.hits.Add(1)

		return cached, nil
	}

	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile slot pattern %q: %w", pattern, err)
	}

	pm.mu.Lock()
	pm.cache[pattern] = compiled
	pm.mu.Unlock()

	pm.misses.Add(1)

	return compiled, nil
}

// MatchString reports whether name matches pattern. Invalid patterns never match.
func (pm *PatternMatcher) MatchString(pattern, name string) bool {
	compiled, err := pm.CompileAndCache(pattern)
	if err != nil {
		return false
	}

	return compiled.MatchString(name)
}

// CacheStats returns the number of cache hits and misses.
func (pm *PatternMatcher) CacheStats() (hits, misses int64) {
	return pm.hits.Load(), pm.misses.Load()
}
