package lower

import (
	"errors"
	"testing"

	"github.com/keel-lang/keelc/pkg/cflat"
	"github.com/keel-lang/keelc/pkg/ctypes"
	"github.com/keel-lang/keelc/pkg/ir"
	"github.com/keel-lang/keelc/pkg/temps"
)

func newTestLowerer() (*Lowerer, *temps.Table, *cflat.ConstPool) {
	table := temps.NewTable()
	pool := cflat.NewConstPool()
	return New(temps.New(), table, pool), table, pool
}

func intVar(name string) ir.VarRef {
	return ir.VarRef{Name: name, Typ: ctypes.Int32()}
}

func TestLowerExpr_IntLit(t *testing.T) {
	l, table, _ := newTestLowerer()
	result, err := l.LowerExpr(ir.IntLit{Value: 42, Typ: ctypes.Int32()})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 0 {
		t.Errorf("expected no statements, got %d", len(result.Stmts))
	}
	lit, ok := result.Value.(cflat.Rint)
	if !ok {
		t.Fatalf("expected Rint, got %T", result.Value)
	}
	if lit.Value != 42 {
		t.Errorf("expected value 42, got %d", lit.Value)
	}
	if table.Len() != 0 {
		t.Errorf("literal lowering allocated %d temps, want 0", table.Len())
	}
}

func TestLowerExpr_VarRef(t *testing.T) {
	l, table, _ := newTestLowerer()
	result, err := l.LowerExpr(intVar("x"))
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 0 {
		t.Errorf("expected no statements, got %d", len(result.Stmts))
	}
	v, ok := result.Value.(cflat.Rvar)
	if !ok {
		t.Fatalf("expected Rvar, got %T", result.Value)
	}
	if v.Name != "x" {
		t.Errorf("expected name 'x', got %s", v.Name)
	}
	if table.Len() != 0 {
		t.Errorf("variable lowering allocated %d temps, want 0", table.Len())
	}
}

func TestLowerExpr_Binary(t *testing.T) {
	l, table, _ := newTestLowerer()

	// a + b
	result, err := l.LowerExpr(ir.Binary{
		Op:    ir.OpAdd,
		Left:  intVar("a"),
		Right: intVar("b"),
		Typ:   ctypes.Int32(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 2 {
		t.Fatalf("expected declare+assign pair, got %d statements", len(result.Stmts))
	}
	decl, ok := result.Stmts[0].(cflat.Sdecl)
	if !ok {
		t.Fatalf("expected Sdecl first, got %T", result.Stmts[0])
	}
	if cflat.Key(decl.Target) != ".tmp1" {
		t.Errorf("first temp = %s, want .tmp1", cflat.Key(decl.Target))
	}
	set, ok := result.Stmts[1].(cflat.Sset)
	if !ok {
		t.Fatalf("expected Sset second, got %T", result.Stmts[1])
	}
	rhs, ok := set.RHS.(cflat.Rbinop)
	if !ok {
		t.Fatalf("expected Rbinop RHS, got %T", set.RHS)
	}
	if rhs.Op != cflat.Oadd {
		t.Errorf("expected Oadd, got %v", rhs.Op)
	}
	tmp, ok := result.Value.(cflat.Rtemp)
	if !ok {
		t.Fatalf("expected Rtemp value, got %T", result.Value)
	}
	if tmp.ID != 1 {
		t.Errorf("value temp = %d, want 1", tmp.ID)
	}
	if table.Len() != 1 {
		t.Errorf("allocated %d temps, want 1", table.Len())
	}
}

func TestLowerExpr_NestedBinaryOrder(t *testing.T) {
	l, _, _ := newTestLowerer()

	// (a + b) * (c + d): temp 1 for the left sum, temp 2 for the right
	// sum, temp 3 for the product.
	result, err := l.LowerExpr(ir.Binary{
		Op:   ir.OpMul,
		Left: ir.Binary{Op: ir.OpAdd, Left: intVar("a"), Right: intVar("b"), Typ: ctypes.Int32()},
		Right: ir.Binary{
			Op: ir.OpAdd, Left: intVar("c"), Right: intVar("d"), Typ: ctypes.Int32(),
		},
		Typ: ctypes.Int32(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 6 {
		t.Fatalf("expected 6 statements, got %d", len(result.Stmts))
	}
	var defOrder []temps.ID
	for _, s := range result.Stmts {
		if set, ok := s.(cflat.Sset); ok {
			defOrder = append(defOrder, set.Temp)
		}
	}
	if len(defOrder) != 3 || defOrder[0] != 1 || defOrder[1] != 2 || defOrder[2] != 3 {
		t.Errorf("definition order = %v, want [1 2 3]", defOrder)
	}

	product, ok := result.Stmts[5].(cflat.Sset)
	if !ok {
		t.Fatalf("expected final Sset, got %T", result.Stmts[5])
	}
	rhs := product.RHS.(cflat.Rbinop)
	leftTmp, ok := rhs.Left.(cflat.Rtemp)
	if !ok || leftTmp.ID != 1 {
		t.Errorf("product left operand should be .tmp1, got %v", rhs.Left)
	}
	rightTmp, ok := rhs.Right.(cflat.Rtemp)
	if !ok || rightTmp.ID != 2 {
		t.Errorf("product right operand should be .tmp2, got %v", rhs.Right)
	}
}

func TestLowerExpr_NegationLowersToZeroMinus(t *testing.T) {
	l, _, _ := newTestLowerer()

	result, err := l.LowerExpr(ir.Unary{Op: ir.OpNeg, Operand: intVar("x"), Typ: ctypes.Int32()})
	if err != nil {
		t.Fatal(err)
	}

	set, ok := result.Stmts[len(result.Stmts)-1].(cflat.Sset)
	if !ok {
		t.Fatalf("expected Sset, got %T", result.Stmts[len(result.Stmts)-1])
	}
	rhs, ok := set.RHS.(cflat.Rbinop)
	if !ok {
		t.Fatalf("negation should lower to a subtraction, got %T", set.RHS)
	}
	if rhs.Op != cflat.Osub {
		t.Errorf("expected Osub, got %v", rhs.Op)
	}
	zero, ok := rhs.Left.(cflat.Rint)
	if !ok || zero.Value != 0 {
		t.Errorf("expected zero left operand, got %v", rhs.Left)
	}
}

func TestLowerExpr_LogicalNot(t *testing.T) {
	l, _, _ := newTestLowerer()

	result, err := l.LowerExpr(ir.Unary{Op: ir.OpNot, Operand: ir.VarRef{Name: "ok", Typ: ctypes.Bool()}, Typ: ctypes.Bool()})
	if err != nil {
		t.Fatal(err)
	}

	set := result.Stmts[len(result.Stmts)-1].(cflat.Sset)
	un, ok := set.RHS.(cflat.Runop)
	if !ok {
		t.Fatalf("expected Runop, got %T", set.RHS)
	}
	if un.Op != cflat.Onot {
		t.Errorf("expected Onot, got %v", un.Op)
	}
}

func TestLowerExpr_ValueCall(t *testing.T) {
	l, _, _ := newTestLowerer()

	result, err := l.LowerExpr(ir.Call{
		Func: "add",
		Args: []ir.Expr{
			ir.IntLit{Value: 10, Typ: ctypes.Int32()},
			ir.IntLit{Value: 20, Typ: ctypes.Int32()},
		},
		Ret: ctypes.Int32(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 1 {
		t.Fatalf("expected single call statement, got %d", len(result.Stmts))
	}
	call, ok := result.Stmts[0].(cflat.Scall)
	if !ok {
		t.Fatalf("expected Scall, got %T", result.Stmts[0])
	}
	if call.Result == nil || *call.Result != 1 {
		t.Errorf("call result temp = %v, want 1", call.Result)
	}
	if len(call.Args) != 2 {
		t.Errorf("args = %d, want 2", len(call.Args))
	}
}

func TestLowerExpr_VoidCall(t *testing.T) {
	l, table, _ := newTestLowerer()

	result, err := l.LowerExpr(ir.Call{Func: "println", Args: nil, Ret: ctypes.Void()})
	if err != nil {
		t.Fatal(err)
	}

	if result.Value != nil {
		t.Errorf("void call should carry no value, got %v", result.Value)
	}
	call := result.Stmts[0].(cflat.Scall)
	if call.Result != nil {
		t.Error("void call should have no result temp")
	}
	if table.Len() != 0 {
		t.Errorf("void call allocated %d temps, want 0", table.Len())
	}
}

func TestLowerExpr_CallArgumentOrder(t *testing.T) {
	l, _, _ := newTestLowerer()

	// f(g(), h()): g's result temp must be defined before h's.
	result, err := l.LowerExpr(ir.Call{
		Func: "f",
		Args: []ir.Expr{
			ir.Call{Func: "g", Ret: ctypes.Int32()},
			ir.Call{Func: "h", Ret: ctypes.Int32()},
		},
		Ret: ctypes.Int32(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 3 {
		t.Fatalf("expected 3 call statements, got %d", len(result.Stmts))
	}
	g := result.Stmts[0].(cflat.Scall)
	h := result.Stmts[1].(cflat.Scall)
	f := result.Stmts[2].(cflat.Scall)
	if g.Func != "g" || h.Func != "h" || f.Func != "f" {
		t.Fatalf("call order = %s, %s, %s; want g, h, f", g.Func, h.Func, f.Func)
	}
	if *g.Result != 1 || *h.Result != 2 {
		t.Errorf("argument temps = %d, %d; want 1, 2", *g.Result, *h.Result)
	}
}

func TestLowerExpr_StringLiteral(t *testing.T) {
	l, _, pool := newTestLowerer()

	result, err := l.LowerExpr(ir.StringLit{Value: "All tests passed!"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 2 {
		t.Fatalf("expected declare+assign pair, got %d statements", len(result.Stmts))
	}
	set := result.Stmts[1].(cflat.Sset)
	str, ok := set.RHS.(cflat.Rstring)
	if !ok {
		t.Fatalf("expected Rstring RHS, got %T", set.RHS)
	}
	if str.Text != "All tests passed!" {
		t.Errorf("text = %q", str.Text)
	}
	if pool.Len() != 1 {
		t.Errorf("pool entries = %d, want 1", pool.Len())
	}

	// Same text again shares the pool entry but gets its own temp.
	again, err := l.LowerExpr(ir.StringLit{Value: "All tests passed!"})
	if err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 1 {
		t.Errorf("pool entries after re-intern = %d, want 1", pool.Len())
	}
	str2 := again.Stmts[1].(cflat.Sset).RHS.(cflat.Rstring)
	if str2.Index != str.Index {
		t.Errorf("indices differ: %d vs %d", str2.Index, str.Index)
	}
}

func TestLowerExpr_FieldAccessIsPure(t *testing.T) {
	l, table, _ := newTestLowerer()
	pointTyp := ctypes.Struct("Point",
		ctypes.Field{Name: "x", Type: ctypes.Int32()},
		ctypes.Field{Name: "y", Type: ctypes.Int32()},
	)

	result, err := l.LowerExpr(ir.Field{
		Base: ir.VarRef{Name: "p", Typ: pointTyp},
		Name: "x",
		Typ:  ctypes.Int32(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stmts) != 0 {
		t.Errorf("field access should add no statements, got %d", len(result.Stmts))
	}
	fld, ok := result.Value.(cflat.Rfield)
	if !ok {
		t.Fatalf("expected Rfield, got %T", result.Value)
	}
	if fld.Name != "x" {
		t.Errorf("field = %q, want x", fld.Name)
	}
	if table.Len() != 0 {
		t.Errorf("field access allocated %d temps, want 0", table.Len())
	}
}

func TestLowerStmt_LetScalar(t *testing.T) {
	l, _, _ := newTestLowerer()

	// let result: int32 = add(10, 20)
	stmts, err := l.LowerStmt(ir.Let{
		Name: "result",
		Typ:  ctypes.Int32(),
		Value: ir.Call{
			Func: "add",
			Args: []ir.Expr{
				ir.IntLit{Value: 10, Typ: ctypes.Int32()},
				ir.IntLit{Value: 20, Typ: ctypes.Int32()},
			},
			Ret: ctypes.Int32(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(stmts) != 3 {
		t.Fatalf("expected call, declaration, store; got %d statements", len(stmts))
	}
	if _, ok := stmts[0].(cflat.Scall); !ok {
		t.Errorf("first should be Scall, got %T", stmts[0])
	}
	decl, ok := stmts[1].(cflat.Sdecl)
	if !ok {
		t.Fatalf("second should be Sdecl, got %T", stmts[1])
	}
	if cflat.Key(decl.Target) != "result" {
		t.Errorf("declared slot = %s, want result", cflat.Key(decl.Target))
	}
	store, ok := stmts[2].(cflat.Sassign)
	if !ok {
		t.Fatalf("third should be Sassign, got %T", stmts[2])
	}
	if tmp, ok := store.RHS.(cflat.Rtemp); !ok || tmp.ID != 1 {
		t.Errorf("stored value should be .tmp1, got %v", store.RHS)
	}
}

func TestLowerStmt_LetAggregate(t *testing.T) {
	l, _, _ := newTestLowerer()
	pointTyp := ctypes.Struct("Point",
		ctypes.Field{Name: "x", Type: ctypes.Int32()},
		ctypes.Field{Name: "y", Type: ctypes.Int32()},
	)

	// let p1 = Point { x: 3, y: 4 }
	stmts, err := l.LowerStmt(ir.Let{
		Name: "p1",
		Typ:  pointTyp,
		Value: ir.StackAlloc{
			Typ: pointTyp,
			Inits: []ir.FieldInit{
				{Name: "x", Value: ir.IntLit{Value: 3, Typ: ctypes.Int32()}},
				{Name: "y", Value: ir.IntLit{Value: 4, Typ: ctypes.Int32()}},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(stmts) != 3 {
		t.Fatalf("expected declaration plus two field stores, got %d", len(stmts))
	}
	decl, ok := stmts[0].(cflat.Sdecl)
	if !ok {
		t.Fatalf("first should be Sdecl, got %T", stmts[0])
	}
	if !ctypes.Equal(decl.Typ, pointTyp) {
		t.Errorf("declared type = %v, want struct Point", decl.Typ)
	}
	for i, fieldName := range []string{"x", "y"} {
		store, ok := stmts[1+i].(cflat.Sassign)
		if !ok {
			t.Fatalf("statement %d should be Sassign, got %T", 1+i, stmts[1+i])
		}
		fld, ok := store.LHS.(cflat.Rfield)
		if !ok {
			t.Fatalf("store target should be Rfield, got %T", store.LHS)
		}
		if fld.Name != fieldName {
			t.Errorf("store %d field = %q, want %q", i, fld.Name, fieldName)
		}
	}
}

func TestLowerStmt_AggregateNeverSingleStepDefined(t *testing.T) {
	l, table, _ := newTestLowerer()
	pointTyp := ctypes.Struct("Point",
		ctypes.Field{Name: "x", Type: ctypes.Int32()},
	)

	stmts, err := l.LowerStmt(ir.Let{
		Name:  "p",
		Typ:   pointTyp,
		Value: ir.StackAlloc{Typ: pointTyp, Inits: []ir.FieldInit{{Name: "x", Value: ir.IntLit{Value: 1, Typ: ctypes.Int32()}}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range stmts {
		if _, ok := s.(cflat.Sdef); ok {
			t.Error("aggregate construction must not produce a merged definition")
		}
	}
	if table.Len() != 0 {
		t.Errorf("aggregate with literal fields allocated %d temps, want 0", table.Len())
	}
}

func TestLowerStmt_DiscardedCallKeepsTemp(t *testing.T) {
	l, table, _ := newTestLowerer()

	stmts, err := l.LowerStmt(ir.ExprStmt{Expr: ir.Call{
		Func: "add",
		Args: []ir.Expr{
			ir.IntLit{Value: 10, Typ: ctypes.Int32()},
			ir.IntLit{Value: 20, Typ: ctypes.Int32()},
		},
		Ret: ctypes.Int32(),
	}})
	if err != nil {
		t.Fatal(err)
	}

	call, ok := stmts[0].(cflat.Scall)
	if !ok {
		t.Fatalf("expected Scall, got %T", stmts[0])
	}
	if call.Result == nil {
		t.Error("discarded non-void call must still define its temporary")
	}
	if table.Len() != 1 {
		t.Errorf("allocated %d temps, want 1", table.Len())
	}
}

func TestLowerStmt_Return(t *testing.T) {
	l, _, _ := newTestLowerer()

	stmts, err := l.LowerStmt(ir.Return{Value: ir.Binary{
		Op:    ir.OpAdd,
		Left:  intVar("a"),
		Right: intVar("b"),
		Typ:   ctypes.Int32(),
	}})
	if err != nil {
		t.Fatal(err)
	}

	ret, ok := stmts[len(stmts)-1].(cflat.Sreturn)
	if !ok {
		t.Fatalf("expected trailing Sreturn, got %T", stmts[len(stmts)-1])
	}
	tmp, ok := ret.Value.(cflat.Rtemp)
	if !ok {
		t.Fatalf("return operand should be materialized, got %T", ret.Value)
	}
	if tmp.ID != 1 {
		t.Errorf("return temp = %d, want 1", tmp.ID)
	}

	bare, err := l.LowerStmt(ir.Return{})
	if err != nil {
		t.Fatal(err)
	}
	if r := bare[0].(cflat.Sreturn); r.Value != nil {
		t.Error("bare return should carry no value")
	}
}

func TestLowerErrors(t *testing.T) {
	pointTyp := ctypes.Struct("Point", ctypes.Field{Name: "x", Type: ctypes.Int32()})

	t.Run("struct construction outside let", func(t *testing.T) {
		l, _, _ := newTestLowerer()
		_, err := l.LowerExpr(ir.StackAlloc{Typ: pointTyp})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown struct field", func(t *testing.T) {
		l, _, _ := newTestLowerer()
		_, err := l.LowerStmt(ir.Let{
			Name:  "p",
			Typ:   pointTyp,
			Value: ir.StackAlloc{Typ: pointTyp, Inits: []ir.FieldInit{{Name: "z", Value: ir.IntLit{Value: 1, Typ: ctypes.Int32()}}}},
		})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("void call as value", func(t *testing.T) {
		l, _, _ := newTestLowerer()
		_, err := l.LowerExpr(ir.Binary{
			Op:    ir.OpAdd,
			Left:  ir.Call{Func: "println", Ret: ctypes.Void()},
			Right: ir.IntLit{Value: 1, Typ: ctypes.Int32()},
			Typ:   ctypes.Int32(),
		})
		if !errors.Is(err, ErrVoidValue) {
			t.Fatalf("expected ErrVoidValue, got %v", err)
		}
	})
}

func TestTempIDsContinueAcrossFunctions(t *testing.T) {
	alloc := temps.New()
	pool := cflat.NewConstPool()

	first := New(alloc, temps.NewTable(), pool)
	res1, err := first.LowerExpr(ir.Binary{Op: ir.OpAdd, Left: intVar("a"), Right: intVar("b"), Typ: ctypes.Int32()})
	if err != nil {
		t.Fatal(err)
	}

	second := New(alloc, temps.NewTable(), pool)
	res2, err := second.LowerExpr(ir.Binary{Op: ir.OpMul, Left: intVar("x"), Right: intVar("y"), Typ: ctypes.Int32()})
	if err != nil {
		t.Fatal(err)
	}

	t1 := res1.Value.(cflat.Rtemp)
	t2 := res2.Value.(cflat.Rtemp)
	if t1.ID != 1 || t2.ID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2 (no reset between functions)", t1.ID, t2.ID)
	}
}
