package bufferpool

// clockReplacer implements CLOCK (second-chance) over frame indices
// [0..capacity). Whether a frame may be evicted is decided per sweep by the
// caller, since eligibility depends on transaction state.
type clockReplacer struct {
	ref     []bool
	present []bool
	hand    int
}

func newClockReplacer(capacity int) *clockReplacer {
	if capacity <= 0 {
		capacity = 1
	}
	return &clockReplacer{
		ref:     make([]bool, capacity),
		present: make([]bool, capacity),
	}
}

// touch marks a frame as occupied and recently used.
func (c *clockReplacer) touch(idx int) {
	if idx < 0 || idx >= len(c.ref) {
		return
	}
	c.present[idx] = true
	c.ref[idx] = true
}

// remove stops tracking a frame.
func (c *clockReplacer) remove(idx int) {
	if idx < 0 || idx >= len(c.ref) {
		return
	}
	c.present[idx] = false
	c.ref[idx] = false
}

// evict picks a victim among present frames accepted by canEvict and stops
// tracking it.
func (c *clockReplacer) evict(canEvict func(idx int) bool) (int, bool) {
	n := len(c.ref)

	// Up to 2 sweeps: the first may only clear reference bits.
	for range 2 * n {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		if !c.present[idx] || !canEvict(idx) {
			continue
		}
		if c.ref[idx] {
			// Second chance.
			c.ref[idx] = false
			continue
		}
		c.remove(idx)
		return idx, true
	}
	return -1, false
}

func (c *clockReplacer) size() int {
	n := 0
	for _, p := range c.present {
		if p {
			n++
		}
	}
	return n
}
