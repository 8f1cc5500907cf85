package webgpu

import (
	"sync"
)

// BufferSize represents different buffer size categories for pooling.
type BufferSize int

const (
	// SmallBuffer for buffers < 4KB (softmax scalars, small intermediates).
	SmallBuffer BufferSize = iota
	// MediumBuffer for buffers 4KB-1MB.
	MediumBuffer
	// LargeBuffer for buffers > 1MB.
	LargeBuffer
)

const (
	// Size thresholds for buffer categories.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per category
)

// pooledBuffer wraps a device buffer with metadata.
type pooledBuffer struct {
	buffer Buffer
	size   uint64
	usage  BufferUsage
}

// BufferPool reuses scratch buffers across dispatches and iterations.
// Buffers are categorized by size and matched by usage.
type BufferPool struct {
	device Device

	// Pools organized by size category
	small  []*pooledBuffer
	medium []*pooledBuffer
	large  []*pooledBuffer

	mu sync.Mutex

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Allocated uint64 // Buffers created on the device
	Released  uint64 // Buffers handed back
	Hits      uint64 // Acquires served from the pool
	Misses    uint64 // Acquires that allocated
	Pooled    int    // Buffers currently idle in the pool
}

// NewBufferPool creates a new buffer pool for the given device.
func NewBufferPool(device Device) *BufferPool {
	return &BufferPool{
		device: device,
		small:  make([]*pooledBuffer, 0, maxPoolSize),
		medium: make([]*pooledBuffer, 0, maxPoolSize),
		large:  make([]*pooledBuffer, 0, maxPoolSize),
	}
}

// Acquire gets a buffer from the pool or creates a new one.
// Returns a buffer that matches or exceeds the requested size with the same
// usage. Pooled buffers keep stale contents; callers must overwrite them.
func (p *BufferPool) Acquire(label string, size uint64, usage BufferUsage) (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	category := p.categorize(size)
	pool := p.getPool(category)

	// Try to find a suitable buffer in the pool
	for i, pb := range pool {
		if pb.size >= size && pb.usage == usage {
			buffer := pb.buffer
			p.removeFromPool(category, i)
			p.poolHits++
			return buffer, nil
		}
	}

	// No suitable buffer found - create new one
	buffer, err := p.device.AllocateBuffer(label, usage, size, nil)
	if err != nil {
		return nil, deviceError("allocate "+label, err)
	}
	p.poolMisses++
	p.totalAllocated++

	return buffer, nil
}

// Release returns a buffer to the pool for reuse.
// If the pool is full, the buffer is immediately released.
func (p *BufferPool) Release(buffer Buffer, usage BufferUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++

	size := buffer.Size()
	category := p.categorize(size)
	pool := p.getPool(category)

	if len(pool) >= maxPoolSize {
		buffer.Release()
		return
	}

	p.addToPool(category, &pooledBuffer{
		buffer: buffer,
		size:   size,
		usage:  usage,
	})
}

// Clear releases all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pool := range [][]*pooledBuffer{p.small, p.medium, p.large} {
		for _, pb := range pool {
			pb.buffer.Release()
		}
	}
	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
}

// Stats returns statistics about buffer pool usage.
func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Allocated: p.totalAllocated,
		Released:  p.totalReleased,
		Hits:      p.poolHits,
		Misses:    p.poolMisses,
		Pooled:    len(p.small) + len(p.medium) + len(p.large),
	}
}

// categorize determines the size category for a buffer.
func (p *BufferPool) categorize(size uint64) BufferSize {
	if size < smallThreshold {
		return SmallBuffer
	}
	if size < mediumThreshold {
		return MediumBuffer
	}
	return LargeBuffer
}

// getPool returns the pool slice for a given category.
func (p *BufferPool) getPool(category BufferSize) []*pooledBuffer {
	switch category {
	case SmallBuffer:
		return p.small
	case MediumBuffer:
		return p.medium
	case LargeBuffer:
		return p.large
	default:
		return nil
	}
}

// addToPool adds a buffer to the appropriate pool category.
func (p *BufferPool) addToPool(category BufferSize, pb *pooledBuffer) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small, pb)
	case MediumBuffer:
		p.medium = append(p.medium, pb)
	case LargeBuffer:
		p.large = append(p.large, pb)
	}
}

// removeFromPool removes a buffer at index i from the appropriate pool.
func (p *BufferPool) removeFromPool(category BufferSize, i int) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumBuffer:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case LargeBuffer:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
