package attest

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// AttestationCache memoizes attestations keyed by the report's content.
// Proof generation dominates the cost of attesting, so callers replaying
// the same settlement shape reuse the earlier proof.
type AttestationCache struct {
	mu        sync.RWMutex
	cache     map[string]*Attestation
	maxSize   int
	hits      int64
	misses    int64
	evictions int64
}

// NewAttestationCache creates a cache with the specified maximum size.
// When the cache is full, an arbitrary entry is evicted. Set maxSize to
// 0 for an unbounded cache.
func NewAttestationCache(maxSize int) *AttestationCache {
	return &AttestationCache{
		cache:   make(map[string]*Attestation),
		maxSize: maxSize,
	}
}

// hashReport creates a deterministic key from the session id and every
// entry's token and flows.
func hashReport(r *Report) string {
	h := sha256.New()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, r.Session)
	h.Write(buf)
	for _, e := range r.Entries {
		h.Write([]byte(e.Token))
		h.Write([]byte{0})
		h.Write(e.Withdrawn.Bytes())
		h.Write([]byte{0})
		h.Write(e.Paid.Bytes())
		h.Write([]byte{0})
	}
	return string(h.Sum(nil))
}

// Get retrieves a cached attestation for the report, or nil.
func (c *AttestationCache) Get(r *Report) *Attestation {
	key := hashReport(r)

	c.mu.Lock()
	defer c.mu.Unlock()

	if att, ok := c.cache[key]; ok {
		c.hits++
		return att
	}
	c.misses++
	return nil
}

// Put stores an attestation under its report's key.
func (c *AttestationCache) Put(att *Attestation) {
	key := hashReport(att.Report)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.cache) >= c.maxSize {
		for k := range c.cache {
			delete(c.cache, k)
			c.evictions++
			break
		}
	}
	c.cache[key] = att
}

// GetOrProve returns the cached attestation for the report, proving and
// caching it on a miss.
func (c *AttestationCache) GetOrProve(p *Prover, r *Report) (*Attestation, error) {
	if att := c.Get(r); att != nil {
		return att, nil
	}
	att, err := p.Prove(r)
	if err != nil {
		return nil, err
	}
	c.Put(att)
	return att, nil
}

// Size returns the current number of cached attestations.
func (c *AttestationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear removes all entries.
func (c *AttestationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*Attestation)
}

// CacheStats describes cache behavior since creation.
type CacheStats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Stats returns cache statistics.
func (c *AttestationCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:      len(c.cache),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}
