package object

import "sync"

// SymbolID is the globally-unique small integer identifying an interned symbol name.
//
// A SymbolID, once assigned, never changes, and the table that assigns it never shrinks (§3 invariants).
type SymbolID int64

// SymbolTable is the process-wide name<->id intern table described in §4.3.
//
// Concurrent access is serialized by a single mutex; Intern and Name are O(1) expected.
type SymbolTable struct {
	mu     sync.Mutex
	byName map[string]SymbolID
	byID   []string
}

// NewSymbolTable creates an empty intern table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string]SymbolID),
	}
}

// Intern returns the existing id for name, or assigns and returns the next free one.
func (t *SymbolTable) Intern(name string) SymbolID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byName[name]; ok {
		return id
	}
	id := SymbolID(len(t.byID))
	t.byName[name] = id
	t.byID = append(t.byID, name)
	return id
}

// Name returns the name that was interned to produce id. It panics if id was never assigned,
// which would itself be an InternalError-class invariant violation in any caller.
func (t *SymbolTable) Name(id SymbolID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// Lookup returns the id already assigned to name without assigning a new one.
func (t *SymbolTable) Lookup(name string) (SymbolID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byName[name]
	return id, ok
}
