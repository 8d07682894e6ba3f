// Package reader implements Cedar's lexer and reader as a single pass (§4.11): source text
// goes directly to an s-expression tree of core [object.Ref] values, since the reader's
// output "is core data" rather than a separate AST type. Tokenizing is folded in rather
// than staged through a token package, the way a Lisp reader traditionally works directly
// off the character stream.
package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/object"
)

// Reader reads one or more forms from a fixed input string, interning symbols into the
// given table as it goes.
type Reader struct {
	input        string
	position     int
	readPosition int
	ch           byte
	line         int
	symbols      *object.SymbolTable
}

// New creates a Reader over input, interning symbols via symbols.
func New(input string, symbols *object.SymbolTable) *Reader {
	r := &Reader{input: input, line: 1, symbols: symbols}
	r.readChar()
	return r
}

// ReadAll reads every top-level form in the input until EOF.
func ReadAll(input string, symbols *object.SymbolTable) ([]object.Ref, error) {
	r := New(input, symbols)
	var forms []object.Ref
	for {
		form, ok, err := r.Read()
		if err != nil {
			return nil, err
		}
		if !ok {
			return forms, nil
		}
		forms = append(forms, form)
	}
}

// Read reads a single top-level form. ok is false at EOF with no form read.
func (r *Reader) Read() (object.Ref, bool, error) {
	r.skipAtmosphere()
	if r.ch == 0 {
		return object.NilRef, false, nil
	}
	form, err := r.readForm()
	if err != nil {
		return object.NilRef, false, err
	}
	return form, true, nil
}

func (r *Reader) readChar() {
	if r.readPosition >= len(r.input) {
		r.ch = 0
	} else {
		r.ch = r.input[r.readPosition]
	}
	if r.ch == '\n' {
		r.line++
	}
	r.position = r.readPosition
	r.readPosition++
}

func (r *Reader) peekChar() byte {
	if r.readPosition >= len(r.input) {
		return 0
	}
	return r.input[r.readPosition]
}

// skipAtmosphere skips whitespace and `;` line comments, the two things that carry no
// meaning between forms.
func (r *Reader) skipAtmosphere() {
	for {
		if r.ch == ' ' || r.ch == '\t' || r.ch == '\n' || r.ch == '\r' || r.ch == ',' {
			r.readChar()
			continue
		}
		if r.ch == ';' {
			for r.ch != '\n' && r.ch != 0 {
				r.readChar()
			}
			continue
		}
		break
	}
}

func (r *Reader) readForm() (object.Ref, error) {
	r.skipAtmosphere()
	switch {
	case r.ch == 0:
		return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unexpected end of input"}
	case r.ch == '(':
		return r.readList(')')
	case r.ch == '[':
		return r.readVector()
	case r.ch == '{':
		return r.readDict()
	case r.ch == ')' || r.ch == ']' || r.ch == '}':
		return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: fmt.Sprintf("unexpected %q", r.ch)}
	case r.ch == '\'':
		r.readChar()
		inner, err := r.readForm()
		if err != nil {
			return object.NilRef, err
		}
		return object.ListFromSlice([]object.Ref{r.symbolRef("quote"), inner}), nil
	case r.ch == '"':
		return r.readString()
	case r.ch == ':':
		r.readChar()
		name := r.readAtomText()
		if name == "" {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "empty keyword"}
		}
		return object.NewKeyword(r.symbols.Intern(name)), nil
	default:
		return r.readAtom()
	}
}

func (r *Reader) readList(closer byte) (object.Ref, error) {
	r.readChar() // consume '('
	var items []object.Ref
	for {
		r.skipAtmosphere()
		if r.ch == 0 {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unterminated list"}
		}
		if r.ch == closer {
			r.readChar()
			return object.ListFromSlice(items), nil
		}
		item, err := r.readForm()
		if err != nil {
			return object.NilRef, err
		}
		items = append(items, item)
	}
}

func (r *Reader) readVector() (object.Ref, error) {
	r.readChar() // consume '['
	var items []object.Ref
	for {
		r.skipAtmosphere()
		if r.ch == 0 {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unterminated vector"}
		}
		if r.ch == ']' {
			r.readChar()
			return object.NewVector(items...), nil
		}
		item, err := r.readForm()
		if err != nil {
			return object.NilRef, err
		}
		items = append(items, item)
	}
}

func (r *Reader) readDict() (object.Ref, error) {
	r.readChar() // consume '{'
	dict := object.NewDict()
	d, _ := object.AsDict(dict)
	for {
		r.skipAtmosphere()
		if r.ch == 0 {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unterminated dict"}
		}
		if r.ch == '}' {
			r.readChar()
			return dict, nil
		}
		key, err := r.readForm()
		if err != nil {
			return object.NilRef, err
		}
		r.skipAtmosphere()
		if r.ch == 0 || r.ch == '}' {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "dict literal missing value"}
		}
		val, err := r.readForm()
		if err != nil {
			return object.NilRef, err
		}
		d.Set(key, val)
	}
}

func (r *Reader) readString() (object.Ref, error) {
	var b strings.Builder
	r.readChar() // consume opening quote
	for {
		if r.ch == '"' {
			r.readChar()
			return object.NewString(b.String()), nil
		}
		if r.ch == 0 {
			return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unterminated string"}
		}
		if r.ch == '\\' {
			r.readChar()
			switch r.ch {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 0:
				return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: "unterminated string"}
			default:
				b.WriteByte('\\')
				b.WriteByte(r.ch)
			}
			r.readChar()
			continue
		}
		b.WriteByte(r.ch)
		r.readChar()
	}
}

func isDelimiter(ch byte) bool {
	switch ch {
	case 0, ' ', '\t', '\n', '\r', ',', '(', ')', '[', ']', '{', '}', '"', ';', '\'':
		return true
	}
	return false
}

func (r *Reader) readAtomText() string {
	start := r.position
	for !isDelimiter(r.ch) {
		r.readChar()
	}
	return r.input[start:r.position]
}

// readAtom reads a symbol or a numeric literal. Cedar numbers follow the usual decimal
// integer/float surface grammar; anything else in an atom position is a symbol (§4.11).
func (r *Reader) readAtom() (object.Ref, error) {
	text := r.readAtomText()
	if text == "" {
		return object.NilRef, &cdrerr.ParseError{Line: r.line, Message: fmt.Sprintf("unexpected %q", r.ch)}
	}
	if text == "nil" {
		return object.NilRef, nil
	}
	if text == "true" {
		return object.TrueRef, nil
	}
	if text == "false" {
		return object.FalseRef, nil
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return object.Int(n), nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && looksNumeric(text) {
		return object.Float(f), nil
	}
	return r.symbolRef(text), nil
}

// looksNumeric guards against strconv.ParseFloat accepting things like "inf" or "nan" as
// symbols; Cedar has no such literals, so those remain ordinary symbol names.
func looksNumeric(text string) bool {
	for _, c := range text {
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return false
		}
	}
	return true
}

func (r *Reader) symbolRef(name string) object.Ref {
	return object.NewSymbolRef(r.symbols.Intern(name))
}
