package cflat

import "sync"

// ConstPool interns the string literals of one unit. Entries keep their
// first-use order; interning the same text twice yields the same index.
// Safe for concurrent use, so parallel function lowering can share it.
type ConstPool struct {
	mu      sync.Mutex
	entries []string
	index   map[string]int
}

// NewConstPool creates an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{index: make(map[string]int)}
}

// Intern adds text to the pool if absent and returns its index.
func (p *ConstPool) Intern(text string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.index[text]; ok {
		return i
	}
	i := len(p.entries)
	p.entries = append(p.entries, text)
	p.index[text] = i
	return i
}

// Get returns the entry at index i.
func (p *ConstPool) Get(i int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.entries) {
		return "", false
	}
	return p.entries[i], true
}

// Len returns the number of interned entries.
func (p *ConstPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// All returns the entries in first-use order.
func (p *ConstPool) All() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}
