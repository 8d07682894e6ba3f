package compiler

// SymbolScope identifies where a compiled name resolves to storage. LocalScope (a closure
// slot, §4.6) is the only scope; globals are not tracked here (see below, §4.4).
type SymbolScope string

const (
	// LocalScope marks a name bound as a `fn` parameter (or rest parameter), stored in the
	// running lambda's closure vector (§4.6).
	LocalScope SymbolScope = "LOCAL"
)

// Globals carry no compile-time declaration (§4.4: any symbol can be read or written as a
// global; an unresolved read only fails at runtime, with NameError). The compiler consults
// [SymbolTable] only to find a LocalScope binding; anything it does not find there compiles
// straight to LOAD_GLOBAL/SET_GLOBAL against the interned symbol id, builtins included.

// Symbol is a compile-time binding: a name, where it lives, and its slot/global index.
type Symbol struct {
	Name  string
	Scope SymbolScope
	Index int
}

// SymbolTable tracks bindings visible at one point in the source (§4.6). Unlike a
// tree-walking interpreter's environment, Cedar's closure vector is flat per invocation:
// a nested `fn` inherits the enclosing frame's closure array wholesale (MAKE_FUNC "inherit
// current frame's closure," §4.6) and its own new locals simply continue the index
// sequence the outer scope had reached, so LOAD_LOCAL i addresses the same slot whether
// compiled inside the outer or the nested lambda. This removes the need for a separate
// free-variable/upvalue scope: Resolve just answers with the inherited index as-is.
type SymbolTable struct {
	Outer *SymbolTable

	store          map[string]Symbol
	numDefinitions int
}

// NewSymbolTable creates a toplevel symbol table with no outer scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]Symbol)}
}

// NewEnclosedSymbolTable creates a symbol table for a nested `fn` body, continuing outer's
// local index sequence so slot numbers remain valid across the nesting boundary.
func NewEnclosedSymbolTable(outer *SymbolTable) *SymbolTable {
	s := NewSymbolTable()
	s.Outer = outer
	if outer != nil {
		s.numDefinitions = outer.numDefinitions
	}
	return s
}

// Define binds name as a new local slot and returns its Symbol.
func (s *SymbolTable) Define(name string) Symbol {
	symbol := Symbol{Name: name, Scope: LocalScope, Index: s.numDefinitions}
	s.store[name] = symbol
	s.numDefinitions++
	return symbol
}

// Resolve looks up name in this scope, then (without introducing a separate free-variable
// indirection - see the SymbolTable doc comment) in each enclosing scope.
func (s *SymbolTable) Resolve(name string) (Symbol, bool) {
	if sym, ok := s.store[name]; ok {
		return sym, true
	}
	if s.Outer != nil {
		return s.Outer.Resolve(name)
	}
	return Symbol{}, false
}

// NumDefinitions reports how many local slots this scope (and everything it inherited
// from its outer chain) has allocated so far.
func (s *SymbolTable) NumDefinitions() int { return s.numDefinitions }
