package securemem

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Pool is a keyed set of secrets.
type Pool struct {
	mu    sync.RWMutex
	items map[string]*String
}

func NewPool() *Pool {
	return &Pool{items: make(map[string]*String)}
}

// Set replaces the value under key, wiping the old one.
func (p *Pool) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.items[key]; ok {
		existing.Destroy()
	}
	p.items[key] = NewString(value)
}

// Lookup returns a plaintext copy of the value under key.
func (p *Pool) Lookup(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.items[key]
	if !ok {
		return "", false
	}
	return s.String(), true
}

// Delete wipes and removes key.
func (p *Pool) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.items[key]; ok {
		s.Destroy()
		delete(p.items, key)
	}
}

// Clear wipes every value.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, s := range p.items {
		s.Destroy()
		delete(p.items, key)
	}
}

// Snapshot copies all values into regular memory, e.g. for persisting.
func (p *Pool) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]string, len(p.items))
	for key, s := range p.items {
		out[key] = s.String()
	}
	return out
}

// Keys returns the keys in sorted order.
func (p *Pool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.items))
	for key := range p.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// String lists keys only.
func (p *Pool) String() string {
	return fmt.Sprintf("SecurePool{%s}", strings.Join(p.Keys(), ", "))
}
