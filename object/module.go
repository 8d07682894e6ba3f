package object

// Module groups a set of globals under a name (§4.12 standard library note). The stdlib
// does not use it: `puts`, `len`, and friends are registered directly into the global
// namespace.
type Module struct {
	Name    string
	Exports map[SymbolID]Ref
}

// NewModule allocates a Module instance with an empty export set.
func NewModule(name string) Ref {
	return FromHeap(NewNativeObject(ModuleType, &Module{Name: name, Exports: make(map[SymbolID]Ref)}))
}

// AsModule reports whether r is a Module and returns its payload.
func AsModule(r Ref) (*Module, bool) {
	if !r.IsHeap() {
		return nil, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != ModuleType {
		return nil, false
	}
	m, ok := o.Native.(*Module)
	return m, ok
}

// Export binds sym to v within the module.
func (m *Module) Export(sym SymbolID, v Ref) {
	m.Exports[sym] = v
}
