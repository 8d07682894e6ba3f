package object

import "sync"

// MacroTable holds compile-time macro definitions (§4.10): a mapping from head symbol to
// a bytecode lambda the compiler runs as a *compiler* (not a call) when it encounters a
// list whose head names a macro, substituting the result for the original form before
// compiling it normally. The table is consulted at compile time only; macros never
// appear in the compiled instruction stream.
type MacroTable struct {
	mu    sync.RWMutex
	table map[SymbolID]Ref
}

// NewMacroTable creates an empty macro table.
func NewMacroTable() *MacroTable {
	return &MacroTable{table: make(map[SymbolID]Ref)}
}

// Define registers sym as a macro expanding via fn (ordinarily a bytecode Lambda ref).
func (t *MacroTable) Define(sym SymbolID, fn Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[sym] = fn
}

// Lookup returns the macro expander bound to sym, if any.
func (t *MacroTable) Lookup(sym SymbolID) (Ref, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.table[sym]
	return v, ok
}
