// Package compiler lowers s-expression forms (plain [object.Ref] values read by the
// reader) into bytecode [code.Instructions], following the form-at-a-time toplevel model:
// each form is compiled and run before the next is compiled, so a `def-macro` in form N
// is visible to the compiler by the time it reaches form N+1 (§4.10).
//
// # Architecture
//
// Compilation is a recursive descent over Ref values standing in for syntax, not a
// separate AST: a list's head symbol selects a special form or, failing that, a call.
// Nested `fn` bodies compile in their own [CompilationScope], continuing the enclosing
// scope's local slot numbering rather than starting a fresh free-variable indirection
// (see the [SymbolTable] doc comment) since MAKE_FUNC inherits the current frame's
// closure wholesale (§4.6).
package compiler

import (
	"fmt"
	"math"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/code"
	"github.com/nickwanninger/cedar/object"
)

// Expander calls a macro-table lambda at compile time with its unevaluated argument forms
// and returns the expanded replacement form (§4.10). The compiler cannot run bytecode
// itself - that is the vm package's job - so this hook is injected by whatever assembles
// the compiler (ordinarily the engine package, backed by a throwaway fiber).
type Expander func(fn object.Ref, args []object.Ref) (object.Ref, error)

// Compiler lowers forms into bytecode, tracking lexical scope, the constant pool, and the
// macro table consulted before compiling a call's head symbol.
type Compiler struct {
	constants []object.Ref

	symbols     *object.SymbolTable
	macros      *object.MacroTable
	symbolTable *SymbolTable
	expand      Expander

	scopes     []*CompilationScope
	scopeIndex int
}

// CompilationScope holds one nested `fn` body's in-progress instruction stream, plus the
// opcode and position of the last two emitted instructions.
type CompilationScope struct {
	instructions code.Instructions

	lastInstruction     emittedInstruction
	previousInstruction emittedInstruction

	// restArg and numParams are not set or read anywhere in this package; compileFn
	// passes the rest-arg flag and argument count to codeUnit directly.
	restArg   bool
	numParams int
}

type emittedInstruction struct {
	Opcode   code.Opcode
	Position int
}

func newCompilationScope() *CompilationScope {
	return &CompilationScope{}
}

// New creates a Compiler sharing the given symbol table (for interning names into
// [object.SymbolID]s) and macro table, with expand used to run macro lambdas at compile
// time.
func New(symbols *object.SymbolTable, macros *object.MacroTable, expand Expander) *Compiler {
	return &Compiler{
		symbols:     symbols,
		macros:      macros,
		symbolTable: NewSymbolTable(),
		expand:      expand,
		scopes:      []*CompilationScope{newCompilationScope()},
	}
}

// CodeUnit is the bytecode produced by compiling a single top-level form or `fn` body.
func (c *Compiler) codeUnit(argc int, restArg bool) *object.CodeUnit {
	return &object.CodeUnit{
		Instructions: c.currentInstructions(),
		Constants:    c.constants,
		Argc:         argc,
		StackSize:    estimateStackSize(c.currentInstructions()),
		RestArg:      restArg,
		NumLocals:    c.symbolTable.NumDefinitions(),
	}
}

// CompileTopLevel compiles a single top-level form into a zero-argument code unit whose
// body is exactly that form's value, followed by an implicit return. The top scope's
// instruction buffer is reset first: otherwise a second top-level form would be appended
// after the first one's (already-RETURNed) bytecode instead of starting its own code unit
// at offset 0, since nothing else clears scopes[0] between forms (only enterScope/
// leaveScope touch it, and those are only used for nested `fn` bodies).
func (c *Compiler) CompileTopLevel(form object.Ref) (*object.CodeUnit, error) {
	c.scopes[c.scopeIndex] = newCompilationScope()
	if err := c.Compile(form); err != nil {
		return nil, err
	}
	c.emit(code.RETURN)
	return c.codeUnit(0, false), nil
}

// Compile lowers one form, leaving exactly one value on the stack (§4.7's RETURN expects
// the return value already pushed by the form's own compiled code).
func (c *Compiler) Compile(form object.Ref) error {
	switch {
	case form.IsNil():
		c.emit(code.NIL)
		return nil
	case form.IsInt():
		c.emit(code.INT, int(form.Int()))
		return nil
	case form.IsFloat():
		c.emit(code.FLOAT, int(int64(math.Float64bits(form.Float()))))
		return nil
	case form.IsBool():
		c.emit(code.CONST, c.addConstant(form))
		return nil
	}

	if _, ok := object.AsString(form); ok {
		c.emit(code.CONST, c.addConstant(form))
		return nil
	}
	if _, ok := object.AsKeyword(form); ok {
		c.emit(code.CONST, c.addConstant(form))
		return nil
	}
	if _, ok := object.AsVector(form); ok {
		c.emit(code.CONST, c.addConstant(form))
		return nil
	}
	if _, ok := object.AsDict(form); ok {
		c.emit(code.CONST, c.addConstant(form))
		return nil
	}
	if sym, ok := object.AsSymbol(form); ok {
		return c.compileVariableRef(sym)
	}
	if object.IsList(form) {
		return c.compileList(form)
	}

	return &cdrerr.CompileError{Message: "form is not a recognized literal, symbol, or list"}
}

func (c *Compiler) compileVariableRef(sym object.SymbolID) error {
	name := c.symbols.Name(sym)
	if local, ok := c.symbolTable.Resolve(name); ok {
		c.emit(code.LOAD_LOCAL, local.Index)
		return nil
	}
	c.emit(code.LOAD_GLOBAL, int(sym))
	return nil
}

func (c *Compiler) compileList(form object.Ref) error {
	items, ok := object.ListToSlice(form)
	if !ok {
		return &cdrerr.CompileError{Message: "improper list cannot be compiled"}
	}
	if len(items) == 0 {
		// The empty list is data, not a call; it self-evaluates to nil.
		c.emit(code.NIL)
		return nil
	}

	if headSym, ok := object.AsSymbol(items[0]); ok {
		name := c.symbols.Name(headSym)
		switch name {
		case "quote":
			return c.compileQuote(items)
		case "if":
			return c.compileIf(items)
		case "def":
			return c.compileDef(items)
		case "fn":
			_, err := c.compileFn(items, "")
			return err
		case "def-macro":
			return c.compileDefMacro(items)
		case "set!":
			return c.compileSet(items)
		case "recur":
			return c.compileRecur(items)
		case "sleep":
			return c.compileSleep(items)
		case "do":
			return c.compileDo(items)
		case "deftype":
			return c.compileDeftype(items)
		}

		if macroFn, ok := c.macros.Lookup(headSym); ok {
			if c.expand == nil {
				return &cdrerr.CompileError{Message: fmt.Sprintf("%s is a macro but no expander is configured", name)}
			}
			expanded, err := c.expand(macroFn, items[1:])
			if err != nil {
				return &cdrerr.CompileError{Message: fmt.Sprintf("expanding %s: %v", name, err), Err: err}
			}
			return c.Compile(expanded)
		}
	}

	return c.compileCall(items)
}

func (c *Compiler) compileQuote(items []object.Ref) error {
	if len(items) != 2 {
		return &cdrerr.CompileError{Message: "quote takes exactly one form"}
	}
	c.emit(code.CONST, c.addConstant(items[1]))
	return nil
}

func (c *Compiler) compileIf(items []object.Ref) error {
	if len(items) < 3 || len(items) > 4 {
		return &cdrerr.CompileError{Message: "if takes a condition, a then-branch, and an optional else-branch"}
	}
	if err := c.Compile(items[1]); err != nil {
		return err
	}
	jumpFalsePos := c.emit(code.JUMP_IF_FALSE, 9999)

	if err := c.Compile(items[2]); err != nil {
		return err
	}
	jumpPos := c.emit(code.JUMP, 9999)

	c.changeOperand(jumpFalsePos, len(c.currentInstructions()))

	if len(items) == 4 {
		if err := c.Compile(items[3]); err != nil {
			return err
		}
	} else {
		c.emit(code.NIL)
	}

	c.changeOperand(jumpPos, len(c.currentInstructions()))
	return nil
}

func (c *Compiler) compileDo(items []object.Ref) error {
	body := items[1:]
	if len(body) == 0 {
		c.emit(code.NIL)
		return nil
	}
	for i, form := range body {
		if err := c.Compile(form); err != nil {
			return err
		}
		if i != len(body)-1 {
			c.emit(code.SKIP)
		}
	}
	return nil
}

func (c *Compiler) compileDef(items []object.Ref) error {
	if len(items) != 3 {
		return &cdrerr.CompileError{Message: "def takes a name and a value form"}
	}
	sym, ok := object.AsSymbol(items[1])
	if !ok {
		return &cdrerr.CompileError{Message: "def's first argument must be a symbol"}
	}
	if err := c.Compile(items[2]); err != nil {
		return err
	}
	c.emit(code.SET_GLOBAL, int(sym))
	return nil
}

func (c *Compiler) compileSet(items []object.Ref) error {
	if len(items) != 3 {
		return &cdrerr.CompileError{Message: "set! takes a name and a value form"}
	}
	sym, ok := object.AsSymbol(items[1])
	if !ok {
		return &cdrerr.CompileError{Message: "set!'s first argument must be a symbol"}
	}
	if err := c.Compile(items[2]); err != nil {
		return err
	}
	name := c.symbols.Name(sym)
	if local, ok := c.symbolTable.Resolve(name); ok {
		c.emit(code.SET_LOCAL, local.Index)
		return nil
	}
	c.emit(code.SET_GLOBAL, int(sym))
	return nil
}

func (c *Compiler) compileRecur(items []object.Ref) error {
	args := items[1:]
	for _, a := range args {
		if err := c.Compile(a); err != nil {
			return err
		}
	}
	c.emit(code.RECUR, len(args))
	return nil
}

func (c *Compiler) compileSleep(items []object.Ref) error {
	if len(items) != 2 {
		return &cdrerr.CompileError{Message: "sleep takes exactly one duration form"}
	}
	if err := c.Compile(items[1]); err != nil {
		return err
	}
	c.emit(code.SLEEP)
	c.emit(code.NIL)
	return nil
}

// compileDeftype compiles `(deftype Name (Parent...) (method-name fn-expr)...)` into calls
// against two host builtins rather than a dedicated opcode: __make_type__ builds the Type
// from its evaluated parent expressions, and __set_type_field__ installs each method. The
// type is also bound to the global Name, the same way `def` binds its value, so later forms
// can refer to it by name as an ordinary callee; the deftype form's own value is the Type
// itself (the same thing the deleted evaluator's class-literal path produced, per
// DESIGN.md's notes on that precedent). The builtin names are hardcoded here rather than
// imported, since stdlib depends on engine which depends on compiler - the same layering
// reason `sleep` is a special form instead of a plain global.
func (c *Compiler) compileDeftype(items []object.Ref) error {
	if len(items) < 3 {
		return &cdrerr.CompileError{Message: "deftype takes a name, a parent list, and zero or more method clauses"}
	}
	nameSym, ok := object.AsSymbol(items[1])
	if !ok {
		return &cdrerr.CompileError{Message: "deftype's first argument must be a symbol naming the type"}
	}
	parents, ok := object.ListToSlice(items[2])
	if !ok {
		return &cdrerr.CompileError{Message: "deftype's second argument must be a list of parent type expressions"}
	}

	c.emit(code.LOAD_GLOBAL, int(c.symbols.Intern("__make_type__")))
	c.emit(code.CONST, c.addConstant(object.NewString(c.symbols.Name(nameSym))))
	for _, parent := range parents {
		if err := c.Compile(parent); err != nil {
			return err
		}
	}
	c.emit(code.CALL, len(parents)+1)

	setFieldSym := int(c.symbols.Intern("__set_type_field__"))
	for _, clause := range items[3:] {
		parts, ok := object.ListToSlice(clause)
		if !ok || len(parts) != 2 {
			return &cdrerr.CompileError{Message: "deftype method clauses must be (name expr) pairs"}
		}
		methodSym, ok := object.AsSymbol(parts[0])
		if !ok {
			return &cdrerr.CompileError{Message: "deftype method clause's first element must be a symbol"}
		}

		c.emit(code.LOAD_GLOBAL, setFieldSym)
		c.emit(code.DUP, 1)
		c.emit(code.CONST, c.addConstant(object.NewSymbolRef(methodSym)))
		if err := c.Compile(parts[1]); err != nil {
			return err
		}
		c.emit(code.CALL, 3)
		c.emit(code.SKIP)
	}

	c.emit(code.SET_GLOBAL, int(nameSym))
	return nil
}

func (c *Compiler) compileCall(items []object.Ref) error {
	if err := c.Compile(items[0]); err != nil {
		return err
	}
	for _, arg := range items[1:] {
		if err := c.Compile(arg); err != nil {
			return err
		}
	}
	c.emit(code.CALL, len(items)-1)
	return nil
}

// compileFn compiles `(fn (params... [& rest]) body...)` into a fresh code unit stored in
// the constant pool, and emits MAKE_FUNC to instantiate it against the current closure.
// `name` is empty for an anonymous lambda, non-empty only for the def-macro expander case
// where the lambda is named for diagnostics.
func (c *Compiler) compileFn(items []object.Ref, name string) (*object.Lambda, error) {
	if len(items) < 2 {
		return nil, &cdrerr.CompileError{Message: "fn takes a parameter list and a body"}
	}
	params, ok := object.ListToSlice(items[1])
	if !ok {
		if _, isVec := object.AsVector(items[1]); !isVec {
			return nil, &cdrerr.CompileError{Message: "fn's parameter list must be a list or vector of symbols"}
		}
	}
	if v, isVec := object.AsVector(items[1]); isVec {
		params = v.Items()
	}

	c.enterScope()

	restArg := false
	argc := 0
	for i, p := range params {
		psym, ok := object.AsSymbol(p)
		if !ok {
			c.leaveScope()
			return nil, &cdrerr.CompileError{Message: "fn parameters must be symbols"}
		}
		pname := c.symbols.Name(psym)
		if pname == "&" {
			restArg = true
			continue
		}
		c.symbolTable.Define(pname)
		if !restArg {
			argc++
		}
		_ = i
	}

	body := items[2:]
	if len(body) == 0 {
		c.emit(code.NIL)
	}
	for i, form := range body {
		if err := c.Compile(form); err != nil {
			c.leaveScope()
			return nil, err
		}
		if i != len(body)-1 {
			c.emit(code.SKIP)
		}
	}
	c.emit(code.RETURN)

	cu := c.codeUnit(argc, restArg)
	c.leaveScope()

	idx := c.addConstant(object.NewLambda(&object.Lambda{Name: name, Code: cu}))
	c.emit(code.MAKE_FUNC, idx)

	lam, _ := object.AsLambda(c.constants[idx])
	return lam, nil
}

func (c *Compiler) compileDefMacro(items []object.Ref) error {
	if len(items) < 3 {
		return &cdrerr.CompileError{Message: "def-macro takes a name, a parameter list, and a body"}
	}
	sym, ok := object.AsSymbol(items[1])
	if !ok {
		return &cdrerr.CompileError{Message: "def-macro's first argument must be a symbol"}
	}
	fnForm := append([]object.Ref{items[0]}, items[2:]...)
	if _, err := c.compileFn(fnForm, c.symbols.Name(sym)); err != nil {
		return err
	}
	c.emit(code.DEF_MACRO, int(sym))
	return nil
}

func (c *Compiler) addConstant(r object.Ref) int {
	c.constants = append(c.constants, r)
	return len(c.constants) - 1
}

func (c *Compiler) emit(op code.Opcode, operands ...int) int {
	ins := code.Make(op, operands...)
	pos := c.addInstruction(ins)
	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []byte) int {
	pos := len(c.currentInstructions())
	c.scopes[c.scopeIndex].instructions = append(c.currentInstructions(), ins...)
	return pos
}

func (c *Compiler) setLastInstruction(op code.Opcode, pos int) {
	scope := c.scopes[c.scopeIndex]
	scope.previousInstruction = scope.lastInstruction
	scope.lastInstruction = emittedInstruction{Opcode: op, Position: pos}
}

func (c *Compiler) currentInstructions() code.Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) replaceInstruction(pos int, newInstruction []byte) {
	ins := c.currentInstructions()
	copy(ins[pos:], newInstruction)
}

func (c *Compiler) changeOperand(opPos int, operand int) {
	op := code.Opcode(c.currentInstructions()[opPos])
	c.replaceInstruction(opPos, code.Make(op, operand))
}

func (c *Compiler) enterScope() {
	c.scopes = append(c.scopes, newCompilationScope())
	c.scopeIndex++
	c.symbolTable = NewEnclosedSymbolTable(c.symbolTable)
}

func (c *Compiler) leaveScope() code.Instructions {
	ins := c.currentInstructions()
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--
	c.symbolTable = c.symbolTable.Outer
	return ins
}

// estimateStackSize conservatively bounds a code unit's operand-stack growth by summing
// every instruction's static push contribution; this overshoots the true high-water mark
// (it does not account for JUMP_IF_FALSE branches retiring pushes along the path not
// taken) but an upper bound is exactly what §3's stack-size invariant requires.
func estimateStackSize(ins code.Instructions) int {
	depth, maxDepth := 0, 0
	i := 0
	for i < len(ins) {
		def, err := code.Lookup(ins[i])
		if err != nil {
			i++
			continue
		}
		operands, read := code.ReadOperands(def, ins[i+1:])
		depth += stackEffect(def.Name, operands)
		if depth > maxDepth {
			maxDepth = depth
		}
		i += read + 1
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	return maxDepth
}

func stackEffect(name string, operands []int) int {
	switch name {
	case "NIL", "CONST", "INT", "FLOAT", "LOAD_LOCAL", "LOAD_GLOBAL", "MAKE_FUNC", "DUP":
		return 1
	case "CONS", "APPEND", "JUMP_IF_FALSE", "SKIP":
		return -1
	case "CALL":
		n := 0
		if len(operands) > 0 {
			n = operands[0]
		}
		return -n
	case "RECUR":
		n := 0
		if len(operands) > 0 {
			n = operands[0]
		}
		return -n
	default:
		return 0
	}
}
