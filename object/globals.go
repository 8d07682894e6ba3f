package object

import (
	"sync"
)

// Globals is the process-wide symbol-id -> ref mapping shared across fibers (§4.4).
// Readers take a shared lock; writers take an exclusive lock. Defining a global is
// idempotent in effect - the latest value wins - and there is no "unbind".
type Globals struct {
	mu     sync.RWMutex
	values map[SymbolID]Ref
}

// NewGlobals creates an empty global store.
func NewGlobals() *Globals {
	return &Globals{values: make(map[SymbolID]Ref)}
}

// Get reads the value bound to sym. The bool is false if sym is unbound, which a
// LOAD_GLOBAL caller must turn into a NameError (§7).
func (g *Globals) Get(sym SymbolID) (Ref, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.values[sym]
	return v, ok
}

// Set binds sym to v, overwriting any previous binding.
func (g *Globals) Set(sym SymbolID, v Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[sym] = v
}

// Define is an alias for Set kept for readability at call sites that register host
// lambdas rather than assign a compiled global (§6.1 "def_global").
func (g *Globals) Define(sym SymbolID, v Ref) { g.Set(sym, v) }
