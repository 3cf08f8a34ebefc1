package common

// CircularBuffer is a fixed-capacity ring of samples for streaming
// analyzers. Writes wrap and overwrite the oldest data; "full" is a state,
// not an error. The zero slots of a buffer that has never filled are
// regular zero samples, so readers never see uninitialized data.
type CircularBuffer struct {
	buffer   []float64
	size     int
	writePos int
	written  int
}

// NewCircularBuffer creates a circular buffer with the given capacity
func NewCircularBuffer(size int) *CircularBuffer {
	return &CircularBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Push appends a single sample, overwriting the oldest when full
func (cb *CircularBuffer) Push(sample float64) {
	cb.buffer[cb.writePos] = sample
	cb.writePos = (cb.writePos + 1) % cb.size
	if cb.written < cb.size {
		cb.written++
	}
}

// PushAll appends a block of samples
func (cb *CircularBuffer) PushAll(samples []float64) {
	for _, s := range samples {
		cb.Push(s)
	}
}

// CopyOrdered unwraps the ring into dst oldest-first. dst must hold
// Size() samples. Slots not yet written read as zero.
func (cb *CircularBuffer) CopyOrdered(dst []float64) {
	for i := 0; i < cb.size && i < len(dst); i++ {
		dst[i] = cb.buffer[(cb.writePos+i)%cb.size]
	}
}

// Raw returns the backing slice in write order, without unwrapping.
// Intended for diagnostics only.
func (cb *CircularBuffer) Raw() []float64 {
	return cb.buffer
}

// WritePos returns the current write position
func (cb *CircularBuffer) WritePos() int {
	return cb.writePos
}

// IsFull reports whether the buffer has wrapped at least once
func (cb *CircularBuffer) IsFull() bool {
	return cb.written == cb.size
}

// Size returns the buffer capacity
func (cb *CircularBuffer) Size() int {
	return cb.size
}

// Clear zeroes the buffer and resets the write position
func (cb *CircularBuffer) Clear() {
	for i := range cb.buffer {
		cb.buffer[i] = 0
	}
	cb.writePos = 0
	cb.written = 0
}
