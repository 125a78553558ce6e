package signal

// Ring is a fixed-capacity FIFO of samples. Pushing into a full ring evicts
// the oldest sample. The zero value has no capacity and drops every push.
type Ring struct {
	data  []float64
	start int
	n     int
}

// NewRing returns an empty ring holding at most capacity samples.
func NewRing(capacity int) Ring {
	if capacity < 0 {
		capacity = 0
	}

	return Ring{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when full.
func (r *Ring) Push(v float64) {
	if len(r.data) == 0 {
		return
	}
	if r.n < len(r.data) {
		r.data[(r.start+r.n)%len(r.data)] = v
		r.n++
		return
	}
	r.data[r.start] = v
	r.start = (r.start + 1) % len(r.data)
}

// Len returns the number of stored samples.
func (r Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r Ring) Cap() int { return len(r.data) }

// Fill returns Len/Cap, or 0 for a zero-capacity ring.
func (r Ring) Fill() float64 {
	if len(r.data) == 0 {
		return 0
	}

	return float64(r.n) / float64(len(r.data))
}

// Values returns the samples oldest first in a fresh slice.
func (r Ring) Values() []float64 {
	out := make([]float64, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}

	return out
}

// Last returns the newest sample.
func (r Ring) Last() (float64, bool) {
	if r.n == 0 {
		return 0, false
	}

	return r.data[(r.start+r.n-1)%len(r.data)], true
}

// Clone returns an independent copy.
func (r Ring) Clone() Ring {
	c := Ring{data: make([]float64, len(r.data)), start: r.start, n: r.n}
	copy(c.data, r.data)

	return c
}

// Reset empties the ring, keeping its capacity.
func (r *Ring) Reset() {
	r.start, r.n = 0, 0
}
