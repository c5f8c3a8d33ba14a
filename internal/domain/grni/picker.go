package grni

import (
	"math/rand/v2"
	"sync"
)

// OwnerPicker chooses one of n candidates for key (company/role).
// Implementations must return a value in [0, n); n is always > 0.
type OwnerPicker interface {
	Pick(key string, n int) int
}

// RandomPicker spreads accruals uniformly at random.
type RandomPicker struct{}

// Pick implements OwnerPicker.
func (RandomPicker) Pick(_ string, n int) int {
	return rand.IntN(n)
}

// RoundRobinPicker cycles through candidates per key. State is per process.
// The zero value is ready to use.
type RoundRobinPicker struct {
	mu   sync.Mutex
	next map[string]int
}

// NewRoundRobinPicker creates an empty round-robin picker.
func NewRoundRobinPicker() *RoundRobinPicker {
	return &RoundRobinPicker{next: make(map[string]int)}
}

// Pick implements OwnerPicker.
func (p *RoundRobinPicker) Pick(key string, n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next == nil {
		p.next = make(map[string]int)
	}
	i := p.next[key] % n
	p.next[key] = i + 1
	return i
}

// PickerFor maps a strategy name to a picker. Unknown names fall back to random.
func PickerFor(strategy string) OwnerPicker {
	if strategy == "round_robin" {
		return NewRoundRobinPicker()
	}
	return RandomPicker{}
}
