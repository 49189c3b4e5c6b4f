package engine

import (
	"sort"
	"sync"
)

// attemptGuard is the in-memory set of symbols that already had a buy attempt
// this session. It is an optimisation in front of the store checks, never the
// source of truth.
//
// A symbol won through TryAcquire is also held until Finish. Held symbols
// survive Release and Reset: between order placement and the position write
// the store cannot block a second buy, so the guard must.
type attemptGuard struct {
	mu   sync.Mutex
	set  map[string]struct{}
	held map[string]int
}

func newAttemptGuard() *attemptGuard {
	return &attemptGuard{set: make(map[string]struct{}), held: make(map[string]int)}
}

// TryAcquire inserts and holds symbol and reports whether it was absent.
// Exactly one of any number of concurrent callers wins; the winner must call
// Finish.
func (g *attemptGuard) TryAcquire(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.set[symbol]; ok {
		return false
	}
	g.set[symbol] = struct{}{}
	g.held[symbol]++
	return true
}

// Finish drops the hold taken by TryAcquire. With release the symbol also
// leaves the attempted set.
func (g *attemptGuard) Finish(symbol string, release bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.held[symbol]; n > 1 {
		g.held[symbol] = n - 1
	} else {
		delete(g.held, symbol)
	}
	if release && g.held[symbol] == 0 {
		delete(g.set, symbol)
	}
}

func (g *attemptGuard) Add(symbol string) {
	g.mu.Lock()
	g.set[symbol] = struct{}{}
	g.mu.Unlock()
}

// Release removes symbol unless an operation still holds it.
func (g *attemptGuard) Release(symbol string) {
	g.mu.Lock()
	if g.held[symbol] == 0 {
		delete(g.set, symbol)
	}
	g.mu.Unlock()
}

func (g *attemptGuard) Contains(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.set[symbol]
	return ok
}

// Reset clears every symbol not held by an in-flight operation and returns
// how many were cleared.
func (g *attemptGuard) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := make(map[string]struct{}, len(g.held))
	for s := range g.held {
		next[s] = struct{}{}
	}
	cleared := len(g.set) - len(next)
	g.set = next
	return cleared
}

// Snapshot returns the guarded symbols in sorted order.
func (g *attemptGuard) Snapshot() []string {
	g.mu.Lock()
	out := make([]string, 0, len(g.set))
	for s := range g.set {
		out = append(out, s)
	}
	g.mu.Unlock()
	sort.Strings(out)
	return out
}
