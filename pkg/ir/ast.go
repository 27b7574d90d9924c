// Package ir defines the typed intermediate representation the lowering
// backend accepts. Units arrive fully resolved: every expression carries
// its type and every call its callee's signature. Nothing in this package
// or downstream of it performs inference.
package ir

import "github.com/keel-lang/keelc/pkg/ctypes"

// Node is the base interface for all IR nodes
type Node interface {
	implIRNode()
}

// Expr is the interface for all expression nodes
type Expr interface {
	Node
	implIRExpr()
	ExprType() ctypes.Type
}

// Stmt is the interface for all statement nodes
type Stmt interface {
	Node
	implIRStmt()
}

// BinaryOp represents binary operators
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd // &&
	OpOr  // ||
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnaryOp represents unary operators
type UnaryOp int

const (
	OpNeg UnaryOp = iota // -
	OpNot                // !
)

func (op UnaryOp) String() string {
	names := []string{"-", "!"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// --- Expressions ---

// IntLit represents an integer literal (int32 or int64 width)
type IntLit struct {
	Value int64
	Typ   ctypes.Type
}

// FloatLit represents a floating-point literal
type FloatLit struct {
	Value float64
	Typ   ctypes.Type
}

// BoolLit represents a boolean literal
type BoolLit struct {
	Value bool
}

// StringLit represents a string literal. The lowering pass interns the
// text into the unit's constant pool.
type StringLit struct {
	Value string
}

// VarRef represents a reference to a parameter or named local
type VarRef struct {
	Name string
	Typ  ctypes.Type
}

// Binary represents a binary expression
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
	Typ   ctypes.Type
}

// Unary represents a unary expression
type Unary struct {
	Op      UnaryOp
	Operand Expr
	Typ     ctypes.Type
}

// Call represents a direct call to a named function. Ret is the callee's
// resolved return type; void-returning calls produce no value.
type Call struct {
	Func string
	Args []Expr
	Ret  ctypes.Type
}

// Field represents struct field access: Base.Name
type Field struct {
	Base Expr
	Name string
	Typ  ctypes.Type
}

// StackAlloc represents construction of a struct value on the stack,
// with per-field initializers in declaration order.
type StackAlloc struct {
	Typ   ctypes.Tstruct
	Inits []FieldInit
}

// FieldInit is one field initializer inside a StackAlloc
type FieldInit struct {
	Name  string
	Value Expr
}

// --- Statements ---

// Let declares a named local and populates it from an expression
type Let struct {
	Name  string
	Typ   ctypes.Type
	Value Expr
}

// Assign stores into an already-declared local or parameter
type Assign struct {
	Name  string
	Value Expr
}

// ExprStmt evaluates an expression for its side effects
type ExprStmt struct {
	Expr Expr
}

// Return leaves the enclosing function. Value is nil for void returns.
type Return struct {
	Value Expr
}

// --- Functions and Units ---

// Param represents a function parameter
type Param struct {
	Name string
	Typ  ctypes.Type
}

// Function represents a function definition. Bodies are flat ordered
// statement lists; there is no branching statement form.
type Function struct {
	Name   string
	Params []Param
	Return ctypes.Type
	Body   []Stmt
}

// Signature returns the function's type
func (f Function) Signature() ctypes.Tfunction {
	params := make([]ctypes.Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ
	}
	return ctypes.Tfunction{Params: params, Return: f.Return}
}

// Extern declares a function defined outside the unit (println and
// friends). Externs are callable but never emitted.
type Extern struct {
	Name string
	Sig  ctypes.Tfunction
}

// Unit represents one translation unit
type Unit struct {
	Name      string
	Structs   []ctypes.Tstruct
	Externs   []Extern
	Functions []Function
}

// FuncNamed returns the unit-local function with the given name.
func (u *Unit) FuncNamed(name string) (*Function, bool) {
	for i := range u.Functions {
		if u.Functions[i].Name == name {
			return &u.Functions[i], true
		}
	}
	return nil, false
}

// ExternNamed returns the extern declaration with the given name.
func (u *Unit) ExternNamed(name string) (Extern, bool) {
	for _, e := range u.Externs {
		if e.Name == name {
			return e, true
		}
	}
	return Extern{}, false
}

// StructNamed returns the struct definition with the given name.
func (u *Unit) StructNamed(name string) (ctypes.Tstruct, bool) {
	for _, s := range u.Structs {
		if s.Name == name {
			return s, true
		}
	}
	return ctypes.Tstruct{}, false
}

// --- Interface implementations ---

// Marker methods for interface implementation
func (IntLit) implIRNode() {}
func (IntLit) implIRExpr() {}

func (FloatLit) implIRNode() {}
func (FloatLit) implIRExpr() {}

func (BoolLit) implIRNode() {}
func (BoolLit) implIRExpr() {}

func (StringLit) implIRNode() {}
func (StringLit) implIRExpr() {}

func (VarRef) implIRNode() {}
func (VarRef) implIRExpr() {}

func (Binary) implIRNode() {}
func (Binary) implIRExpr() {}

func (Unary) implIRNode() {}
func (Unary) implIRExpr() {}

func (Call) implIRNode() {}
func (Call) implIRExpr() {}

func (Field) implIRNode() {}
func (Field) implIRExpr() {}

func (StackAlloc) implIRNode() {}
func (StackAlloc) implIRExpr() {}

func (Let) implIRNode() {}
func (Let) implIRStmt() {}

func (Assign) implIRNode() {}
func (Assign) implIRStmt() {}

func (ExprStmt) implIRNode() {}
func (ExprStmt) implIRStmt() {}

func (Return) implIRNode() {}
func (Return) implIRStmt() {}

// ExprType implementations
func (e IntLit) ExprType() ctypes.Type     { return e.Typ }
func (e FloatLit) ExprType() ctypes.Type   { return e.Typ }
func (e BoolLit) ExprType() ctypes.Type    { return ctypes.Bool() }
func (e StringLit) ExprType() ctypes.Type  { return ctypes.Str() }
func (e VarRef) ExprType() ctypes.Type     { return e.Typ }
func (e Binary) ExprType() ctypes.Type     { return e.Typ }
func (e Unary) ExprType() ctypes.Type      { return e.Typ }
func (e Call) ExprType() ctypes.Type       { return e.Ret }
func (e Field) ExprType() ctypes.Type      { return e.Typ }
func (e StackAlloc) ExprType() ctypes.Type { return e.Typ }
