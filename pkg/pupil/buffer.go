package pupil

// Buffer is a reusable byte buffer that only grows.
// Reserve reallocates when the requested length exceeds capacity and never shrinks.
type Buffer struct {
	data []byte
	n    int
}

// Reserve makes the buffer hold n bytes and returns them.
// Contents are undefined after a grow.
func (b *Buffer) Reserve(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > cap(b.data) {
		b.data = make([]byte, n)
	}
	b.n = n
	return b.data[:n]
}

// Bytes returns the live portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the live length.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Release drops the backing storage.
func (b *Buffer) Release() {
	b.data = nil
	b.n = 0
}

// BufferPool owns every pixel buffer a tracking session needs:
// the shared grayscale frame plus per-eye working and binarisation buffers.
type BufferPool struct {
	gray   Buffer
	eye    [sideCount]Buffer
	binary [sideCount]Buffer
}

// NewBufferPool creates an empty pool. Buffers are sized on first use.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Gray returns the frame-wide luminance buffer.
func (p *BufferPool) Gray() *Buffer {
	return &p.gray
}

// Eye returns the isolated-eye buffer for a side.
func (p *BufferPool) Eye(side Side) *Buffer {
	return &p.eye[side.index()]
}

// Binary returns the thresholded-eye buffer for a side.
func (p *BufferPool) Binary(side Side) *Buffer {
	return &p.binary[side.index()]
}

// Capacity reports the total bytes currently allocated by the pool.
func (p *BufferPool) Capacity() int {
	total := p.gray.Cap()
	for i := range p.eye {
		total += p.eye[i].Cap() + p.binary[i].Cap()
	}
	return total
}

// Release frees all buffers. Only called on session teardown.
func (p *BufferPool) Release() {
	p.gray.Release()
	for i := range p.eye {
		p.eye[i].Release()
		p.binary[i].Release()
	}
}
