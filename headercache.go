package esplora

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino/cache/lru"
)

// cachedHeader wraps a block header so it satisfies the cache.Value
// interface required by the LRU cache.
type cachedHeader struct {
	header wire.BlockHeader
}

// Size returns the "size" of an entry. We return 1 as we just want to limit
// the total number of entries rather than do accurate size accounting.
func (c *cachedHeader) Size() (uint64, error) {
	return 1, nil
}

// headerCache keeps recently fetched block headers. A header never changes
// for a given hash, so entries are only evicted for space.
type headerCache struct {
	cache *lru.Cache[chainhash.Hash, *cachedHeader]
}

// newHeaderCache returns a cache of the given capacity, or nil if the
// capacity is zero.
func newHeaderCache(capacity uint64) *headerCache {
	if capacity == 0 {
		return nil
	}

	return &headerCache{
		cache: lru.NewCache[chainhash.Hash, *cachedHeader](capacity),
	}
}

// get returns a copy of the cached header for hash, if present.
func (h *headerCache) get(hash chainhash.Hash) (*wire.BlockHeader, bool) {
	if h == nil {
		return nil, false
	}

	cached, err := h.cache.Get(hash)
	if err != nil {
		return nil, false
	}

	header := cached.header
	return &header, true
}

// put stores a copy of the header. Only headers that hash to the requested
// block hash are cached.
func (h *headerCache) put(hash chainhash.Hash, header *wire.BlockHeader) {
	if h == nil || header.BlockHash() != hash {
		return
	}

	// Caching is best-effort, a failure just means the next lookup will
	// hit the network again.
	_, _ = h.cache.Put(hash, &cachedHeader{header: *header})
}

// len returns the number of cached headers.
func (h *headerCache) len() int {
	if h == nil {
		return 0
	}

	return h.cache.Len()
}
