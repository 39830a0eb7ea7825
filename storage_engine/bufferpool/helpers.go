package bufferpool

/*
This file holds helper functions for the bufferpool
*/

// GetStats returns current buffer pool statistics
func (bp *BufferPool) GetStats() BufferPoolStats {
	hits, misses := bp.hits.Load(), bp.misses.Load()
	stats := BufferPoolStats{
		Capacity: bp.capacity,
		Hits:     hits,
		Misses:   misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	if m := bp.cache.Metrics; m != nil {
		stats.Cached = m.KeysAdded() - m.KeysEvicted()
	}
	return stats
}

// Reset drops every cached image. The base manager is untouched.
func (bp *BufferPool) Reset() {
	bp.cache.Clear()
	bp.hits.Store(0)
	bp.misses.Store(0)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
