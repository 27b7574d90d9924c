// Package lower turns typed IR expressions and statements into flat
// cflat sequences, materializing every intermediate value into a
// numbered temporary. Literals and variable references stay inline and
// never touch the allocator, so temporary ids stay consecutive.
package lower

import (
	"errors"
	"fmt"

	"github.com/keel-lang/keelc/pkg/cflat"
	"github.com/keel-lang/keelc/pkg/ctypes"
	"github.com/keel-lang/keelc/pkg/ir"
	"github.com/keel-lang/keelc/pkg/temps"
)

// ErrVoidValue reports a void call used where a value is required.
var ErrVoidValue = errors.New("void call used as a value")

// Lowerer lowers one function's body. It draws ids from the shared
// session allocator, records them in the function's temp table, and
// interns string literals into the unit's pool.
type Lowerer struct {
	alloc *temps.Allocator
	table *temps.Table
	pool  *cflat.ConstPool
}

// New creates a lowerer for one function.
func New(alloc *temps.Allocator, table *temps.Table, pool *cflat.ConstPool) *Lowerer {
	return &Lowerer{alloc: alloc, table: table, pool: pool}
}

// Result holds the outcome of lowering one expression: the statements
// that must execute first, in order, and the reference that carries the
// expression's value afterwards. Value is nil for void calls.
type Result struct {
	Stmts []cflat.Stmt
	Value cflat.Ref
}

// newTemp allocates a fresh temporary of the given type and records it.
func (l *Lowerer) newTemp(typ ctypes.Type) temps.ID {
	id := l.alloc.Next()
	l.table.Add(id, typ)
	return id
}

// LowerExpr lowers an expression. Operands are evaluated left to right;
// every operator and call result is materialized into its own
// temporary via a declare-then-assign pair.
func (l *Lowerer) LowerExpr(e ir.Expr) (Result, error) {
	switch expr := e.(type) {
	case ir.IntLit:
		return Result{Value: cflat.Rint{Value: expr.Value, Typ: expr.Typ}}, nil

	case ir.FloatLit:
		return Result{Value: cflat.Rfloat{Value: expr.Value, Typ: expr.Typ}}, nil

	case ir.BoolLit:
		return Result{Value: cflat.Rbool{Value: expr.Value}}, nil

	case ir.StringLit:
		// Interned, then loaded into a temp so later statements hold a
		// plain reference rather than the pool spelling.
		idx := l.pool.Intern(expr.Value)
		strTyp := ctypes.Str()
		id := l.newTemp(strTyp)
		stmts := []cflat.Stmt{
			cflat.Sdecl{Target: cflat.Rtemp{ID: id, Typ: strTyp}, Typ: strTyp},
			cflat.Sset{Temp: id, RHS: cflat.Rstring{Index: idx, Text: expr.Value}},
		}
		return Result{Stmts: stmts, Value: cflat.Rtemp{ID: id, Typ: strTyp}}, nil

	case ir.VarRef:
		return Result{Value: cflat.Rvar{Name: expr.Name, Typ: expr.Typ}}, nil

	case ir.Binary:
		left, err := l.lowerOperand(expr.Left)
		if err != nil {
			return Result{}, err
		}
		right, err := l.lowerOperand(expr.Right)
		if err != nil {
			return Result{}, err
		}

		var stmts []cflat.Stmt
		stmts = append(stmts, left.Stmts...)
		stmts = append(stmts, right.Stmts...)

		id := l.newTemp(expr.Typ)
		rhs := cflat.Rbinop{
			Op:    binaryOp(expr.Op),
			Left:  left.Value,
			Right: right.Value,
			Typ:   expr.Typ,
		}
		stmts = append(stmts,
			cflat.Sdecl{Target: cflat.Rtemp{ID: id, Typ: expr.Typ}, Typ: expr.Typ},
			cflat.Sset{Temp: id, RHS: rhs},
		)
		return Result{Stmts: stmts, Value: cflat.Rtemp{ID: id, Typ: expr.Typ}}, nil

	case ir.Unary:
		inner, err := l.lowerOperand(expr.Operand)
		if err != nil {
			return Result{}, err
		}

		stmts := inner.Stmts
		id := l.newTemp(expr.Typ)
		var rhs cflat.Ref
		switch expr.Op {
		case ir.OpNeg:
			// Negation lowers through subtraction from zero.
			rhs = cflat.Rbinop{
				Op:    cflat.Osub,
				Left:  cflat.Rint{Value: 0, Typ: expr.Typ},
				Right: inner.Value,
				Typ:   expr.Typ,
			}
		case ir.OpNot:
			rhs = cflat.Runop{Op: cflat.Onot, Operand: inner.Value, Typ: expr.Typ}
		default:
			return Result{}, fmt.Errorf("unknown unary operator %v", expr.Op)
		}
		stmts = append(stmts,
			cflat.Sdecl{Target: cflat.Rtemp{ID: id, Typ: expr.Typ}, Typ: expr.Typ},
			cflat.Sset{Temp: id, RHS: rhs},
		)
		return Result{Stmts: stmts, Value: cflat.Rtemp{ID: id, Typ: expr.Typ}}, nil

	case ir.Call:
		var stmts []cflat.Stmt
		var args []cflat.Ref
		for _, arg := range expr.Args {
			res, err := l.lowerOperand(arg)
			if err != nil {
				return Result{}, err
			}
			stmts = append(stmts, res.Stmts...)
			args = append(args, res.Value)
		}

		if ctypes.IsVoid(expr.Ret) {
			stmts = append(stmts, cflat.Scall{Func: expr.Func, Args: args})
			return Result{Stmts: stmts}, nil
		}

		// The call statement is born as the merged declaration and
		// definition of its result temp; there is no separate declare
		// step to hoist.
		id := l.newTemp(expr.Ret)
		stmts = append(stmts, cflat.Scall{Result: &id, Func: expr.Func, Args: args})
		return Result{Stmts: stmts, Value: cflat.Rtemp{ID: id, Typ: expr.Ret}}, nil

	case ir.Field:
		base, err := l.lowerOperand(expr.Base)
		if err != nil {
			return Result{}, err
		}
		switch base.Value.(type) {
		case cflat.Rtemp, cflat.Rvar, cflat.Rfield:
		default:
			return Result{}, fmt.Errorf("field access on non-slot base %T", base.Value)
		}
		return Result{
			Stmts: base.Stmts,
			Value: cflat.Rfield{Base: base.Value, Name: expr.Name, Typ: expr.Typ},
		}, nil

	case ir.StackAlloc:
		return Result{}, fmt.Errorf("struct construction of %s outside a let binding", expr.Typ)

	default:
		return Result{}, fmt.Errorf("unknown expression node %T", e)
	}
}

// lowerOperand lowers a sub-expression used for its value.
func (l *Lowerer) lowerOperand(e ir.Expr) (Result, error) {
	res, err := l.LowerExpr(e)
	if err != nil {
		return Result{}, err
	}
	if res.Value == nil {
		if call, ok := e.(ir.Call); ok {
			return Result{}, fmt.Errorf("%w: %s", ErrVoidValue, call.Func)
		}
		return Result{}, ErrVoidValue
	}
	return res, nil
}

// LowerStmt lowers one statement into its flat form.
func (l *Lowerer) LowerStmt(s ir.Stmt) ([]cflat.Stmt, error) {
	switch st := s.(type) {
	case ir.Let:
		if alloc, ok := st.Value.(ir.StackAlloc); ok {
			return l.lowerAggregateLet(st.Name, alloc)
		}

		res, err := l.lowerOperand(st.Value)
		if err != nil {
			return nil, err
		}
		slot := cflat.Rvar{Name: st.Name, Typ: st.Typ}
		stmts := append(res.Stmts,
			cflat.Sdecl{Target: slot, Typ: st.Typ},
			cflat.Sassign{LHS: slot, RHS: res.Value},
		)
		return stmts, nil

	case ir.Assign:
		res, err := l.lowerOperand(st.Value)
		if err != nil {
			return nil, err
		}
		slot := cflat.Rvar{Name: st.Name, Typ: res.Value.RefType()}
		return append(res.Stmts, cflat.Sassign{LHS: slot, RHS: res.Value}), nil

	case ir.ExprStmt:
		// Value-returning calls keep their temporary even though nothing
		// reads it; the definition stays visible in the output.
		res, err := l.LowerExpr(st.Expr)
		if err != nil {
			return nil, err
		}
		return res.Stmts, nil

	case ir.Return:
		if st.Value == nil {
			return []cflat.Stmt{cflat.Sreturn{}}, nil
		}
		res, err := l.lowerOperand(st.Value)
		if err != nil {
			return nil, err
		}
		return append(res.Stmts, cflat.Sreturn{Value: res.Value}), nil

	default:
		return nil, fmt.Errorf("unknown statement node %T", s)
	}
}

// lowerAggregateLet lowers let name = Struct{...}: the struct gets a
// named stack slot declared up front, then one field store per
// initializer in the order given. Aggregates never pass through a
// single-step temporary definition.
func (l *Lowerer) lowerAggregateLet(name string, alloc ir.StackAlloc) ([]cflat.Stmt, error) {
	slot := cflat.Rvar{Name: name, Typ: alloc.Typ}
	stmts := []cflat.Stmt{cflat.Sdecl{Target: slot, Typ: alloc.Typ}}

	for _, init := range alloc.Inits {
		field, ok := alloc.Typ.FieldNamed(init.Name)
		if !ok {
			return nil, fmt.Errorf("struct %s has no field %s", alloc.Typ.Name, init.Name)
		}
		res, err := l.lowerOperand(init.Value)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, res.Stmts...)
		stmts = append(stmts, cflat.Sassign{
			LHS: cflat.Rfield{Base: slot, Name: init.Name, Typ: field.Type},
			RHS: res.Value,
		})
	}
	return stmts, nil
}

// binaryOp maps IR operators to their cflat counterparts.
func binaryOp(op ir.BinaryOp) cflat.BinaryOp {
	switch op {
	case ir.OpAdd:
		return cflat.Oadd
	case ir.OpSub:
		return cflat.Osub
	case ir.OpMul:
		return cflat.Omul
	case ir.OpDiv:
		return cflat.Odiv
	case ir.OpMod:
		return cflat.Omod
	case ir.OpEq:
		return cflat.Oeq
	case ir.OpNe:
		return cflat.One
	case ir.OpLt:
		return cflat.Olt
	case ir.OpLe:
		return cflat.Ole
	case ir.OpGt:
		return cflat.Ogt
	case ir.OpGe:
		return cflat.Oge
	case ir.OpAnd:
		return cflat.Oand
	case ir.OpOr:
		return cflat.Oor
	}
	return cflat.Oadd
}
