package depth

import "github.com/parvezahmmedmahir/footprint/internal/types"

// LocalDepthCache owns the live book for one stream. The owning goroutine is
// the only mutator; consumers read through Snapshot, which hands out the
// current book and forces the next mutation onto a fresh copy. Readers never
// see a torn update and never block the writer.
type LocalDepthCache struct {
	LastUpdateID uint64
	Time         uint64

	depth  *Depth
	shared bool
}

func NewLocalDepthCache() *LocalDepthCache {
	return &LocalDepthCache{depth: NewDepth()}
}

// Snapshot returns the current book for sharing outside the owning
// goroutine. The returned Depth must be treated as immutable.
func (c *LocalDepthCache) Snapshot() *Depth {
	c.shared = true
	return c.depth
}

func (c *LocalDepthCache) mutable() *Depth {
	if c.shared {
		c.depth = c.depth.clone()
		c.shared = false
	}
	return c.depth
}

// Update applies a snapshot (replace the whole book) or a diff (patch price
// levels) and advances the cache's sequence id and time. Prices are rounded
// to the instrument min tick before keying.
func (c *LocalDepthCache) Update(u Update, minTick types.Price) {
	c.LastUpdateID = u.Payload.LastUpdateID
	c.Time = u.Payload.Time

	d := c.mutable()
	switch u.Kind {
	case Snapshot:
		d.replaceAll(&u.Payload, minTick)
	case Diff:
		d.update(&u.Payload, minTick)
	}
}
