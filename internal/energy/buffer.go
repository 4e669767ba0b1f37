// Package energy provides the internal energy buffer units store work
// energy in, and the contract for external energy networks.
package energy

// Buffer stores energy up to a capacity. Transfers through Receive and
// Extract are limited to maxTransfer per call; Generate is not.
type Buffer struct {
	stored      int
	capacity    int
	maxTransfer int
}

// NewBuffer creates an empty buffer.
func NewBuffer(capacity, maxTransfer int) *Buffer {
	return &Buffer{capacity: capacity, maxTransfer: maxTransfer}
}

func (b *Buffer) Stored() int   { return b.stored }
func (b *Buffer) Capacity() int { return b.capacity }
func (b *Buffer) Space() int    { return b.capacity - b.stored }

// Fraction returns how full the buffer is, in [0, 1].
func (b *Buffer) Fraction() float64 {
	if b.capacity <= 0 {
		return 0
	}
	return float64(b.stored) / float64(b.capacity)
}

// Receive accepts up to n and returns how much was (or would be) taken.
func (b *Buffer) Receive(n int, simulate bool) int {
	got := max(0, min(n, b.maxTransfer, b.Space()))
	if !simulate {
		b.stored += got
	}
	return got
}

// Extract removes up to n and returns how much was (or would be) removed.
func (b *Buffer) Extract(n int, simulate bool) int {
	got := max(0, min(n, b.maxTransfer, b.stored))
	if !simulate {
		b.stored -= got
	}
	return got
}

// Generate adds energy produced inside the unit, clamped to capacity.
func (b *Buffer) Generate(n int) {
	b.stored = max(0, min(b.stored+n, b.capacity))
}

// Consume removes exactly n if available.
func (b *Buffer) Consume(n int) bool {
	if n > b.stored {
		return false
	}
	b.stored -= n
	return true
}

// SetStored overwrites the stored amount, clamped to [0, capacity].
func (b *Buffer) SetStored(n int) {
	b.stored = max(0, min(n, b.capacity))
}
