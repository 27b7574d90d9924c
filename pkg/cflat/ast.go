// Package cflat defines the flattened C-like output form of lowering.
// Bodies are flat statement lists where every intermediate value lives in
// a numbered temporary or a named slot; expressions never nest deeper
// than a single operator. This is what the emission adapter prints.
package cflat

import (
	"github.com/keel-lang/keelc/pkg/ctypes"
	"github.com/keel-lang/keelc/pkg/temps"
)

// Node is the base interface for all cflat nodes
type Node interface {
	implCflatNode()
}

// Ref is the interface for operand references. Refs are side-effect free;
// Rbinop and Runop are the only composite forms and appear on the right
// hand side of definitions only.
type Ref interface {
	Node
	implCflatRef()
	RefType() ctypes.Type
}

// Stmt is the interface for cflat statements
type Stmt interface {
	Node
	implCflatStmt()
}

// BinaryOp represents binary operators in cflat
type BinaryOp int

const (
	Oadd BinaryOp = iota
	Osub
	Omul
	Odiv
	Omod
	Oeq
	One
	Olt
	Ole
	Ogt
	Oge
	Oand // &&
	Oor  // ||
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnaryOp represents unary operators in cflat
type UnaryOp int

const (
	Oneg UnaryOp = iota // -
	Onot                // !
)

func (op UnaryOp) String() string {
	names := []string{"-", "!"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// --- Refs ---

// Rtemp references a numbered temporary
type Rtemp struct {
	ID  temps.ID
	Typ ctypes.Type
}

// Rvar references a parameter or named local
type Rvar struct {
	Name string
	Typ  ctypes.Type
}

// Rfield references a struct field: Base.Name. Base must be Rtemp,
// Rvar, or a nested Rfield.
type Rfield struct {
	Base Ref
	Name string
	Typ  ctypes.Type
}

// Rint is an integer literal operand
type Rint struct {
	Value int64
	Typ   ctypes.Type
}

// Rfloat is a floating-point literal operand
type Rfloat struct {
	Value float64
	Typ   ctypes.Type
}

// Rbool is a boolean literal operand
type Rbool struct {
	Value bool
}

// Rstring references an entry of the unit's constant pool. Text duplicates
// the pool entry so printing a function needs no pool lookup.
type Rstring struct {
	Index int
	Text  string
}

// Rbinop is a single binary operation over atomic operands
type Rbinop struct {
	Op    BinaryOp
	Left  Ref
	Right Ref
	Typ   ctypes.Type
}

// Runop is a single unary operation over an atomic operand
type Runop struct {
	Op      UnaryOp
	Operand Ref
	Typ     ctypes.Type
}

// --- Statements ---

// Sdecl declares a slot without assigning it. Target must be Rtemp or
// Rvar. The sequencer merges temp declarations into definitions; named
// slots keep their standalone declaration.
type Sdecl struct {
	Target Ref
	Typ    ctypes.Type
}

// Sdef is a merged declaration and first assignment of a temporary:
// int32_t .tmp1 = a + b;
type Sdef struct {
	Temp temps.ID
	Typ  ctypes.Type
	RHS  Ref
}

// Sset assigns an already-declared temporary. Only the pre-hoist form
// contains these; the sequencer folds everything it can into Sdef.
type Sset struct {
	Temp temps.ID
	RHS  Ref
}

// Sassign stores into a pre-existing named slot: result = .tmp5;
// LHS must be Rvar or Rfield.
type Sassign struct {
	LHS Ref
	RHS Ref
}

// Scall is a direct call statement. A non-nil Result makes the statement
// double as the declaration and definition of that temporary, printed
// with auto. Nil Result means the callee returns void.
type Scall struct {
	Result *temps.ID
	Func   string
	Args   []Ref
}

// Sreturn leaves the function. Elided marks returns whose temporary was
// folded into the return site by return-value optimization.
type Sreturn struct {
	Value  Ref // nil for void return
	Elided bool
}

// --- Functions and Units ---

// VarDecl represents a parameter declaration
type VarDecl struct {
	Name string
	Type ctypes.Type
}

// Function is one lowered function: a flat statement list plus the
// table of temporaries its lowering allocated.
type Function struct {
	Name   string
	Params []VarDecl
	Return ctypes.Type
	Temps  *temps.Table
	Body   []Stmt
}

// Unit is one lowered translation unit
type Unit struct {
	Name      string
	Structs   []ctypes.Tstruct
	Functions []*Function
	Strings   *ConstPool
}

// --- Interface implementations ---

// Marker methods for Node interface
func (Rtemp) implCflatNode()   {}
func (Rvar) implCflatNode()    {}
func (Rfield) implCflatNode()  {}
func (Rint) implCflatNode()    {}
func (Rfloat) implCflatNode()  {}
func (Rbool) implCflatNode()   {}
func (Rstring) implCflatNode() {}
func (Rbinop) implCflatNode()  {}
func (Runop) implCflatNode()   {}

func (Sdecl) implCflatNode()   {}
func (Sdef) implCflatNode()    {}
func (Sset) implCflatNode()    {}
func (Sassign) implCflatNode() {}
func (Scall) implCflatNode()   {}
func (Sreturn) implCflatNode() {}

// Marker methods for Ref interface
func (Rtemp) implCflatRef()   {}
func (Rvar) implCflatRef()    {}
func (Rfield) implCflatRef()  {}
func (Rint) implCflatRef()    {}
func (Rfloat) implCflatRef()  {}
func (Rbool) implCflatRef()   {}
func (Rstring) implCflatRef() {}
func (Rbinop) implCflatRef()  {}
func (Runop) implCflatRef()   {}

// Marker methods for Stmt interface
func (Sdecl) implCflatStmt()   {}
func (Sdef) implCflatStmt()    {}
func (Sset) implCflatStmt()    {}
func (Sassign) implCflatStmt() {}
func (Scall) implCflatStmt()   {}
func (Sreturn) implCflatStmt() {}

// RefType implementations
func (r Rtemp) RefType() ctypes.Type   { return r.Typ }
func (r Rvar) RefType() ctypes.Type    { return r.Typ }
func (r Rfield) RefType() ctypes.Type  { return r.Typ }
func (r Rint) RefType() ctypes.Type    { return r.Typ }
func (r Rfloat) RefType() ctypes.Type  { return r.Typ }
func (r Rbool) RefType() ctypes.Type   { return ctypes.Bool() }
func (r Rstring) RefType() ctypes.Type { return ctypes.Str() }
func (r Rbinop) RefType() ctypes.Type  { return r.Typ }
func (r Runop) RefType() ctypes.Type   { return r.Typ }
