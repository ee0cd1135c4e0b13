// Package history keeps fixed-size rolling windows of signal values per
// entity, used for live values and sparkline rendering.
package history

import (
	"sort"
	"sync"
)

// Default window sizes.
const (
	DefaultSize       = 10
	DefaultPruneAfter = 3
)

// Manager holds one ring buffer per (entity, signal) pair. It is safe for
// concurrent use, though each view has a single writer.
type Manager struct {
	mu         sync.RWMutex
	size       int
	pruneAfter int
	entities   map[string]*entityHistory
}

// entityHistory holds the windows for a single entity.
type entityHistory struct {
	signals map[string]*ringBuffer
	// misses counts consecutive presence checks the entity was absent from.
	misses int
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewManager creates a manager with windows of size K that prunes an
// entity after pruneAfter consecutive misses.
func NewManager(size, pruneAfter int) *Manager {
	if size <= 0 {
		size = DefaultSize
	}
	if pruneAfter <= 0 {
		pruneAfter = DefaultPruneAfter
	}
	return &Manager{
		size:       size,
		pruneAfter: pruneAfter,
		entities:   make(map[string]*entityHistory),
	}
}

// Size returns the window capacity K.
func (m *Manager) Size() int {
	return m.size
}

// Append pushes v onto the entity's window for signal, evicting the
// oldest value once the window is full.
func (m *Manager) Append(id, signal string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window(id, signal).push(v)
}

// AppendAll pushes one value per signal for the entity.
func (m *Manager) AppendAll(id string, values map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for signal, v := range values {
		m.window(id, signal).push(v)
	}
}

// Read returns exactly K values, oldest first, left-padded with zeros
// when fewer than K real values have been appended.
func (m *Manager) Read(id, signal string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]float64, m.size)
	rb := m.lookup(id, signal)
	if rb == nil {
		return out
	}
	copy(out[m.size-rb.count:], rb.getAll())
	return out
}

// Samples returns only the real values, oldest first.
func (m *Manager) Samples(id, signal string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rb := m.lookup(id, signal)
	if rb == nil {
		return nil
	}
	return rb.getAll()
}

// Count returns the number of real values in the window.
func (m *Manager) Count(id, signal string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rb := m.lookup(id, signal)
	if rb == nil {
		return 0
	}
	return rb.count
}

// Observe records one presence check. Tracked entities in present have
// their miss count reset; the others accrue a miss and are pruned once
// they reach the configured limit. Pruned ids are returned sorted.
func (m *Manager) Observe(present []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	in := make(map[string]bool, len(present))
	for _, id := range present {
		in[id] = true
	}

	var pruned []string
	for id, hist := range m.entities {
		if in[id] {
			hist.misses = 0
			continue
		}
		hist.misses++
		if hist.misses >= m.pruneAfter {
			delete(m.entities, id)
			pruned = append(pruned, id)
		}
	}
	sort.Strings(pruned)
	return pruned
}

// Clear removes all history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]*entityHistory)
}

// window returns the buffer for (id, signal), creating it if needed.
// Must be called with m.mu held.
func (m *Manager) window(id, signal string) *ringBuffer {
	hist, ok := m.entities[id]
	if !ok {
		hist = &entityHistory{signals: make(map[string]*ringBuffer)}
		m.entities[id] = hist
	}
	rb, ok := hist.signals[signal]
	if !ok {
		rb = newRingBuffer(m.size)
		hist.signals[signal] = rb
	}
	return rb
}

// Must be called with m.mu held.
func (m *Manager) lookup(id, signal string) *ringBuffer {
	hist, ok := m.entities[id]
	if !ok {
		return nil
	}
	return hist.signals[signal]
}

// newRingBuffer creates a new ring buffer with the specified capacity.
func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

// push adds a value to the ring buffer.
func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count values in chronological order (oldest first).
func (r *ringBuffer) getLast(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]float64, count)

	// head is the next write position, so the newest value is at head-1.
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}

// getAll returns all stored values in chronological order.
func (r *ringBuffer) getAll() []float64 {
	return r.getLast(r.count)
}
