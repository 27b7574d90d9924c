// Package ctypes defines the resolved C-level type model shared by the
// lowering pipeline. Every type reaching this package has already been
// checked and resolved by the front end; nothing here infers.
package ctypes

// Type is the interface for all resolved types. The String method returns
// the C spelling used in emitted output ("int32_t", "const char*", ...).
type Type interface {
	implType()
	String() string
}

// IntSize represents the width of integer types
type IntSize int

const (
	I32 IntSize = iota
	I64
)

func (s IntSize) String() string {
	if s == I32 {
		return "i32"
	}
	return "i64"
}

// FloatSize represents the width of floating-point types
type FloatSize int

const (
	F32 FloatSize = iota
	F64
)

func (s FloatSize) String() string {
	if s == F32 {
		return "f32"
	}
	return "f64"
}

// Tvoid represents the void type
type Tvoid struct{}

// Tint represents the fixed-width integer types (int32_t, int64_t)
type Tint struct {
	Size IntSize
}

// Tfloat represents floating-point types (float, double)
type Tfloat struct {
	Size FloatSize
}

// Tbool represents the boolean type
type Tbool struct{}

// Tstring represents an immutable string constant type
type Tstring struct{}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
}

// Tstruct represents struct types
type Tstruct struct {
	Name   string
	Fields []Field
}

// Tfunction represents function signatures. VarArg signatures accept
// any number of arguments past the fixed parameters (println).
type Tfunction struct {
	Params []Type
	Return Type
	VarArg bool
}

// Field represents a struct field
type Field struct {
	Name string
	Type Type
}

// Marker methods for Type interface
func (Tvoid) implType()     {}
func (Tint) implType()      {}
func (Tfloat) implType()    {}
func (Tbool) implType()     {}
func (Tstring) implType()   {}
func (Tpointer) implType()  {}
func (Tstruct) implType()   {}
func (Tfunction) implType() {}

// String methods return C spellings.

func (Tvoid) String() string { return "void" }

func (t Tint) String() string {
	if t.Size == I64 {
		return "int64_t"
	}
	return "int32_t"
}

func (t Tfloat) String() string {
	if t.Size == F64 {
		return "double"
	}
	return "float"
}

func (Tbool) String() string { return "bool" }

func (Tstring) String() string { return "const char*" }

func (t Tpointer) String() string {
	if t.Elem == nil {
		return "void*"
	}
	return t.Elem.String() + "*"
}

func (t Tstruct) String() string {
	if t.Name == "" {
		return "struct <anonymous>"
	}
	return "struct " + t.Name
}

func (t Tfunction) String() string {
	return "function"
}

// FieldNamed returns the field with the given name.
func (t Tstruct) FieldNamed(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Common type constructors

// Void returns the void type
func Void() Type {
	return Tvoid{}
}

// Int32 returns the 32-bit integer type
func Int32() Type {
	return Tint{Size: I32}
}

// Int64 returns the 64-bit integer type
func Int64() Type {
	return Tint{Size: I64}
}

// Float32 returns the 32-bit float type
func Float32() Type {
	return Tfloat{Size: F32}
}

// Float64 returns the 64-bit float type
func Float64() Type {
	return Tfloat{Size: F64}
}

// Bool returns the boolean type
func Bool() Type {
	return Tbool{}
}

// Str returns the string constant type
func Str() Type {
	return Tstring{}
}

// Pointer returns a pointer to the given type
func Pointer(elem Type) Type {
	return Tpointer{Elem: elem}
}

// Struct returns a struct type with the given fields
func Struct(name string, fields ...Field) Tstruct {
	return Tstruct{Name: name, Fields: fields}
}

// IsVoid reports whether t is the void type.
func IsVoid(t Type) bool {
	_, ok := t.(Tvoid)
	return ok
}

// Scalar reports whether t is a single-slot value that can live in a
// temporary. Structs are aggregates and get named slots instead; void
// carries no value at all.
func Scalar(t Type) bool {
	switch t.(type) {
	case Tint, Tfloat, Tbool, Tstring, Tpointer:
		return true
	}
	return false
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Size == tb.Size
	case Tfloat:
		tb, ok := b.(Tfloat)
		return ok && ta.Size == tb.Size
	case Tbool:
		_, ok := b.(Tbool)
		return ok
	case Tstring:
		_, ok := b.(Tstring)
		return ok
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tstruct:
		tb, ok := b.(Tstruct)
		return ok && ta.Name == tb.Name
	case Tfunction:
		tb, ok := b.(Tfunction)
		if !ok || ta.VarArg != tb.VarArg || len(ta.Params) != len(tb.Params) {
			return false
		}
		if !Equal(ta.Return, tb.Return) {
			return false
		}
		for i, p := range ta.Params {
			if !Equal(p, tb.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}
