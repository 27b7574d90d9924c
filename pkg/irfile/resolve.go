package irfile

import (
	"fmt"
	"strings"

	"github.com/keel-lang/keelc/pkg/ctypes"
	"github.com/keel-lang/keelc/pkg/ir"
)

// resolver carries the unit-level context needed while converting
// function bodies: declared struct layouts and every callable signature.
type resolver struct {
	structs map[string]ctypes.Tstruct
	callees map[string]ctypes.Tfunction
}

// scope maps in-scope value names (parameters and lets) to their types.
type scope map[string]ctypes.Type

var binaryOps = map[string]ir.BinaryOp{
	"+":  ir.OpAdd,
	"-":  ir.OpSub,
	"*":  ir.OpMul,
	"/":  ir.OpDiv,
	"%":  ir.OpMod,
	"==": ir.OpEq,
	"!=": ir.OpNe,
	"<":  ir.OpLt,
	"<=": ir.OpLe,
	">":  ir.OpGt,
	">=": ir.OpGe,
	"&&": ir.OpAnd,
	"||": ir.OpOr,
}

func comparisonOp(op ir.BinaryOp) bool {
	switch op {
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return true
	}
	return false
}

func logicalOp(op ir.BinaryOp) bool {
	return op == ir.OpAnd || op == ir.OpOr
}

func numericType(t ctypes.Type) bool {
	switch t.(type) {
	case ctypes.Tint, ctypes.Tfloat:
		return true
	}
	return false
}

func resolveUnit(raw *yamlUnit) (*ir.Unit, error) {
	if raw.Unit == "" {
		return nil, fmt.Errorf("unit name is required")
	}
	r := &resolver{
		structs: make(map[string]ctypes.Tstruct),
		callees: make(map[string]ctypes.Tfunction),
	}
	unit := &ir.Unit{Name: raw.Unit}

	for i, ys := range raw.Structs {
		st, err := r.resolveStruct(ys)
		if err != nil {
			return nil, fmt.Errorf("structs[%d]: %w", i, err)
		}
		if _, dup := r.structs[st.Name]; dup {
			return nil, fmt.Errorf("structs[%d]: %s defined twice", i, st.Name)
		}
		r.structs[st.Name] = st
		unit.Structs = append(unit.Structs, st)
	}

	for i, ye := range raw.Externs {
		ext, err := r.resolveExtern(ye)
		if err != nil {
			return nil, fmt.Errorf("externs[%d]: %w", i, err)
		}
		if _, dup := r.callees[ext.Name]; dup {
			return nil, fmt.Errorf("externs[%d]: %s declared twice", i, ext.Name)
		}
		r.callees[ext.Name] = ext.Sig
		unit.Externs = append(unit.Externs, ext)
	}

	// Register every signature before touching bodies so calls resolve
	// regardless of definition order.
	headers := make([]ir.Function, len(raw.Functions))
	for i, yf := range raw.Functions {
		hdr, err := r.resolveHeader(yf)
		if err != nil {
			return nil, fmt.Errorf("functions[%d]: %w", i, err)
		}
		if _, dup := r.callees[hdr.Name]; dup {
			return nil, fmt.Errorf("functions[%d]: %s defined twice", i, hdr.Name)
		}
		r.callees[hdr.Name] = hdr.Signature()
		headers[i] = hdr
	}

	for i := range raw.Functions {
		fn := headers[i]
		if err := r.resolveBody(&fn, raw.Functions[i].Body); err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		unit.Functions = append(unit.Functions, fn)
	}
	return unit, nil
}

func (r *resolver) resolveStruct(y yamlStruct) (ctypes.Tstruct, error) {
	if y.Name == "" {
		return ctypes.Tstruct{}, fmt.Errorf("struct name is required")
	}
	st := ctypes.Tstruct{Name: y.Name}
	for _, f := range y.Fields {
		if f.Name == "" {
			return ctypes.Tstruct{}, fmt.Errorf("struct %s: field name is required", y.Name)
		}
		if _, dup := st.FieldNamed(f.Name); dup {
			return ctypes.Tstruct{}, fmt.Errorf("struct %s: field %s defined twice", y.Name, f.Name)
		}
		typ, err := r.parseType(f.Type)
		if err != nil {
			return ctypes.Tstruct{}, fmt.Errorf("struct %s: field %s: %w", y.Name, f.Name, err)
		}
		if ctypes.IsVoid(typ) {
			return ctypes.Tstruct{}, fmt.Errorf("struct %s: field %s cannot be void", y.Name, f.Name)
		}
		st.Fields = append(st.Fields, ctypes.Field{Name: f.Name, Type: typ})
	}
	return st, nil
}

func (r *resolver) resolveExtern(y yamlExtern) (ir.Extern, error) {
	if y.Name == "" {
		return ir.Extern{}, fmt.Errorf("extern name is required")
	}
	sig := ctypes.Tfunction{VarArg: y.Variadic}
	for i, spec := range y.Params {
		typ, err := r.parseType(spec)
		if err != nil {
			return ir.Extern{}, fmt.Errorf("%s: params[%d]: %w", y.Name, i, err)
		}
		sig.Params = append(sig.Params, typ)
	}
	ret, err := r.parseReturn(y.Return)
	if err != nil {
		return ir.Extern{}, fmt.Errorf("%s: return: %w", y.Name, err)
	}
	sig.Return = ret
	return ir.Extern{Name: y.Name, Sig: sig}, nil
}

func (r *resolver) resolveHeader(y yamlFunction) (ir.Function, error) {
	if y.Name == "" {
		return ir.Function{}, fmt.Errorf("function name is required")
	}
	fn := ir.Function{Name: y.Name}
	seen := make(map[string]bool, len(y.Params))
	for i, p := range y.Params {
		if p.Name == "" {
			return ir.Function{}, fmt.Errorf("%s: params[%d]: name is required", y.Name, i)
		}
		if seen[p.Name] {
			return ir.Function{}, fmt.Errorf("%s: parameter %s defined twice", y.Name, p.Name)
		}
		seen[p.Name] = true
		typ, err := r.parseType(p.Type)
		if err != nil {
			return ir.Function{}, fmt.Errorf("%s: parameter %s: %w", y.Name, p.Name, err)
		}
		if ctypes.IsVoid(typ) {
			return ir.Function{}, fmt.Errorf("%s: parameter %s cannot be void", y.Name, p.Name)
		}
		fn.Params = append(fn.Params, ir.Param{Name: p.Name, Typ: typ})
	}
	ret, err := r.parseReturn(y.Return)
	if err != nil {
		return ir.Function{}, fmt.Errorf("%s: return: %w", y.Name, err)
	}
	fn.Return = ret
	return fn, nil
}

func (r *resolver) resolveBody(fn *ir.Function, body []yamlStmt) error {
	sc := make(scope, len(fn.Params))
	for _, p := range fn.Params {
		sc[p.Name] = p.Typ
	}
	for i, ys := range body {
		st, err := r.resolveStmt(sc, ys, fn.Return)
		if err != nil {
			return fmt.Errorf("body[%d]: %w", i, err)
		}
		fn.Body = append(fn.Body, st)
	}
	return nil
}

func (r *resolver) resolveStmt(sc scope, y yamlStmt, ret ctypes.Type) (ir.Stmt, error) {
	if n := countStmtKinds(y); n != 1 {
		return nil, fmt.Errorf("statement needs exactly one of let, assign, expr, return (got %d)", n)
	}
	switch {
	case y.Let != nil:
		return r.resolveLet(sc, y.Let)
	case y.Assign != nil:
		return r.resolveAssign(sc, y.Assign)
	case y.Expr != nil:
		e, err := r.resolveExpr(sc, y.Expr)
		if err != nil {
			return nil, fmt.Errorf("expr: %w", err)
		}
		return ir.ExprStmt{Expr: e}, nil
	default:
		return r.resolveReturn(sc, y.Return, ret)
	}
}

func (r *resolver) resolveLet(sc scope, y *yamlLet) (ir.Stmt, error) {
	if y.Name == "" {
		return nil, fmt.Errorf("let: name is required")
	}
	if _, dup := sc[y.Name]; dup {
		return nil, fmt.Errorf("let: %s redeclared", y.Name)
	}
	if y.Value == nil {
		return nil, fmt.Errorf("let %s: value is required", y.Name)
	}
	value, err := r.resolveExpr(sc, y.Value)
	if err != nil {
		return nil, fmt.Errorf("let %s: %w", y.Name, err)
	}
	typ := value.ExprType()
	if ctypes.IsVoid(typ) {
		return nil, fmt.Errorf("let %s: value has no result", y.Name)
	}
	if y.Type != "" {
		declared, err := r.parseType(y.Type)
		if err != nil {
			return nil, fmt.Errorf("let %s: %w", y.Name, err)
		}
		if !ctypes.Equal(declared, typ) {
			return nil, fmt.Errorf("let %s: declared %s but value has %s", y.Name, declared, typ)
		}
		typ = declared
	}
	sc[y.Name] = typ
	return ir.Let{Name: y.Name, Typ: typ, Value: value}, nil
}

func (r *resolver) resolveAssign(sc scope, y *yamlAssign) (ir.Stmt, error) {
	if y.Name == "" {
		return nil, fmt.Errorf("assign: name is required")
	}
	declared, ok := sc[y.Name]
	if !ok {
		return nil, fmt.Errorf("assign: %s is not in scope", y.Name)
	}
	if y.Value == nil {
		return nil, fmt.Errorf("assign %s: value is required", y.Name)
	}
	value, err := r.resolveExpr(sc, y.Value)
	if err != nil {
		return nil, fmt.Errorf("assign %s: %w", y.Name, err)
	}
	if !ctypes.Equal(declared, value.ExprType()) {
		return nil, fmt.Errorf("assign %s: slot is %s but value has %s", y.Name, declared, value.ExprType())
	}
	return ir.Assign{Name: y.Name, Value: value}, nil
}

func (r *resolver) resolveReturn(sc scope, y *yamlReturn, ret ctypes.Type) (ir.Stmt, error) {
	if y.Value == nil {
		if !ctypes.IsVoid(ret) {
			return nil, fmt.Errorf("return: function returns %s but no value given", ret)
		}
		return ir.Return{}, nil
	}
	if ctypes.IsVoid(ret) {
		return nil, fmt.Errorf("return: void function cannot return a value")
	}
	value, err := r.resolveExpr(sc, y.Value)
	if err != nil {
		return nil, fmt.Errorf("return: %w", err)
	}
	if !ctypes.Equal(ret, value.ExprType()) {
		return nil, fmt.Errorf("return: function returns %s but value has %s", ret, value.ExprType())
	}
	return ir.Return{Value: value}, nil
}

func (r *resolver) resolveExpr(sc scope, y *yamlExpr) (ir.Expr, error) {
	if y == nil {
		return nil, fmt.Errorf("missing expression")
	}
	if n := countExprKinds(y); n != 1 {
		return nil, fmt.Errorf("expression needs exactly one kind (got %d)", n)
	}
	if y.Type != "" && y.Int == nil && y.Float == nil {
		return nil, fmt.Errorf("type is only valid on numeric literals")
	}
	switch {
	case y.Int != nil:
		typ := ctypes.Int32()
		if y.Type != "" {
			t, err := r.parseType(y.Type)
			if err != nil {
				return nil, err
			}
			if _, ok := t.(ctypes.Tint); !ok {
				return nil, fmt.Errorf("int literal cannot have type %s", t)
			}
			typ = t
		}
		return ir.IntLit{Value: *y.Int, Typ: typ}, nil
	case y.Float != nil:
		typ := ctypes.Float64()
		if y.Type != "" {
			t, err := r.parseType(y.Type)
			if err != nil {
				return nil, err
			}
			if _, ok := t.(ctypes.Tfloat); !ok {
				return nil, fmt.Errorf("float literal cannot have type %s", t)
			}
			typ = t
		}
		return ir.FloatLit{Value: *y.Float, Typ: typ}, nil
	case y.Bool != nil:
		return ir.BoolLit{Value: *y.Bool}, nil
	case y.String != nil:
		return ir.StringLit{Value: *y.String}, nil
	case y.Var != "":
		typ, ok := sc[y.Var]
		if !ok {
			return nil, fmt.Errorf("%s is not in scope", y.Var)
		}
		return ir.VarRef{Name: y.Var, Typ: typ}, nil
	case y.Binary != nil:
		return r.resolveBinary(sc, y.Binary)
	case y.Unary != nil:
		return r.resolveUnary(sc, y.Unary)
	case y.Call != nil:
		return r.resolveCall(sc, y.Call)
	case y.Field != nil:
		return r.resolveField(sc, y.Field)
	default:
		return r.resolveAlloc(sc, y.New)
	}
}

func (r *resolver) resolveBinary(sc scope, y *yamlBinary) (ir.Expr, error) {
	op, ok := binaryOps[y.Op]
	if !ok {
		return nil, fmt.Errorf("unknown binary operator %q", y.Op)
	}
	left, err := r.resolveExpr(sc, y.Left)
	if err != nil {
		return nil, fmt.Errorf("%s: left: %w", y.Op, err)
	}
	right, err := r.resolveExpr(sc, y.Right)
	if err != nil {
		return nil, fmt.Errorf("%s: right: %w", y.Op, err)
	}
	lt, rt := left.ExprType(), right.ExprType()
	if !ctypes.Equal(lt, rt) {
		return nil, fmt.Errorf("%s: operand types differ (%s vs %s)", y.Op, lt, rt)
	}
	if logicalOp(op) && !ctypes.Equal(lt, ctypes.Bool()) {
		return nil, fmt.Errorf("%s: operands must be bool, got %s", y.Op, lt)
	}
	if !ctypes.Scalar(lt) {
		return nil, fmt.Errorf("%s: operands must be scalar, got %s", y.Op, lt)
	}
	typ := lt
	if comparisonOp(op) || logicalOp(op) {
		typ = ctypes.Bool()
	}
	return ir.Binary{Op: op, Left: left, Right: right, Typ: typ}, nil
}

func (r *resolver) resolveUnary(sc scope, y *yamlUnary) (ir.Expr, error) {
	operand, err := r.resolveExpr(sc, y.Operand)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.Op, err)
	}
	switch y.Op {
	case "-":
		if !numericType(operand.ExprType()) {
			return nil, fmt.Errorf("-: operand must be numeric, got %s", operand.ExprType())
		}
		return ir.Unary{Op: ir.OpNeg, Operand: operand, Typ: operand.ExprType()}, nil
	case "!":
		if !ctypes.Equal(operand.ExprType(), ctypes.Bool()) {
			return nil, fmt.Errorf("!: operand must be bool, got %s", operand.ExprType())
		}
		return ir.Unary{Op: ir.OpNot, Operand: operand, Typ: ctypes.Bool()}, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", y.Op)
}

func (r *resolver) resolveCall(sc scope, y *yamlCall) (ir.Expr, error) {
	if y.Func == "" {
		return nil, fmt.Errorf("call: func is required")
	}
	sig, ok := r.callees[y.Func]
	if !ok {
		return nil, fmt.Errorf("call to undefined function %q", y.Func)
	}
	if !sig.VarArg && len(y.Args) != len(sig.Params) {
		return nil, fmt.Errorf("call %s: want %d args, got %d", y.Func, len(sig.Params), len(y.Args))
	}
	if sig.VarArg && len(y.Args) < len(sig.Params) {
		return nil, fmt.Errorf("call %s: want at least %d args, got %d", y.Func, len(sig.Params), len(y.Args))
	}
	args := make([]ir.Expr, len(y.Args))
	for i, ya := range y.Args {
		arg, err := r.resolveExpr(sc, ya)
		if err != nil {
			return nil, fmt.Errorf("call %s: args[%d]: %w", y.Func, i, err)
		}
		if i < len(sig.Params) && !ctypes.Equal(sig.Params[i], arg.ExprType()) {
			return nil, fmt.Errorf("call %s: args[%d] is %s, want %s", y.Func, i, arg.ExprType(), sig.Params[i])
		}
		if i >= len(sig.Params) && !ctypes.Scalar(arg.ExprType()) {
			return nil, fmt.Errorf("call %s: args[%d]: variadic arguments must be scalar", y.Func, i)
		}
		args[i] = arg
	}
	return ir.Call{Func: y.Func, Args: args, Ret: sig.Return}, nil
}

func (r *resolver) resolveField(sc scope, y *yamlField) (ir.Expr, error) {
	if y.Name == "" {
		return nil, fmt.Errorf("field: name is required")
	}
	base, err := r.resolveExpr(sc, y.Base)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", y.Name, err)
	}
	st, ok := base.ExprType().(ctypes.Tstruct)
	if !ok {
		return nil, fmt.Errorf("field %s: base is %s, not a struct", y.Name, base.ExprType())
	}
	f, ok := st.FieldNamed(y.Name)
	if !ok {
		return nil, fmt.Errorf("struct %s has no field %s", st.Name, y.Name)
	}
	return ir.Field{Base: base, Name: y.Name, Typ: f.Type}, nil
}

func (r *resolver) resolveAlloc(sc scope, y *yamlAlloc) (ir.Expr, error) {
	if y.Struct == "" {
		return nil, fmt.Errorf("new: struct is required")
	}
	st, ok := r.structs[y.Struct]
	if !ok {
		return nil, fmt.Errorf("new: unknown struct %q", y.Struct)
	}
	if len(y.Fields) != len(st.Fields) {
		return nil, fmt.Errorf("new %s: want %d field initializers, got %d", y.Struct, len(st.Fields), len(y.Fields))
	}
	inits := make([]ir.FieldInit, len(y.Fields))
	for i, yf := range y.Fields {
		f := st.Fields[i]
		if yf.Name != f.Name {
			return nil, fmt.Errorf("new %s: initializers must follow field order (want %s, got %s)", y.Struct, f.Name, yf.Name)
		}
		if yf.Value != nil && yf.Value.New != nil {
			return nil, fmt.Errorf("new %s: field %s: nested construction is not supported", y.Struct, yf.Name)
		}
		value, err := r.resolveExpr(sc, yf.Value)
		if err != nil {
			return nil, fmt.Errorf("new %s: field %s: %w", y.Struct, yf.Name, err)
		}
		if !ctypes.Equal(f.Type, value.ExprType()) {
			return nil, fmt.Errorf("new %s: field %s is %s, got %s", y.Struct, yf.Name, f.Type, value.ExprType())
		}
		inits[i] = ir.FieldInit{Name: yf.Name, Value: value}
	}
	return ir.StackAlloc{Typ: st, Inits: inits}, nil
}

// parseType resolves a type spelled in the file. A trailing * makes a
// pointer; bare names resolve against the declared structs.
func (r *resolver) parseType(spec string) (ctypes.Type, error) {
	if spec == "" {
		return nil, fmt.Errorf("type is required")
	}
	if strings.HasSuffix(spec, "*") {
		elem, err := r.parseType(strings.TrimSuffix(spec, "*"))
		if err != nil {
			return nil, err
		}
		return ctypes.Pointer(elem), nil
	}
	switch spec {
	case "void":
		return ctypes.Void(), nil
	case "int32":
		return ctypes.Int32(), nil
	case "int64":
		return ctypes.Int64(), nil
	case "float32":
		return ctypes.Float32(), nil
	case "float64":
		return ctypes.Float64(), nil
	case "bool":
		return ctypes.Bool(), nil
	case "string":
		return ctypes.Str(), nil
	}
	if st, ok := r.structs[spec]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("unknown type %q", spec)
}

// parseReturn treats an absent return spelling as void.
func (r *resolver) parseReturn(spec string) (ctypes.Type, error) {
	if spec == "" {
		return ctypes.Void(), nil
	}
	return r.parseType(spec)
}

func countStmtKinds(y yamlStmt) int {
	n := 0
	if y.Let != nil {
		n++
	}
	if y.Assign != nil {
		n++
	}
	if y.Expr != nil {
		n++
	}
	if y.Return != nil {
		n++
	}
	return n
}

func countExprKinds(y *yamlExpr) int {
	n := 0
	if y.Int != nil {
		n++
	}
	if y.Float != nil {
		n++
	}
	if y.Bool != nil {
		n++
	}
	if y.String != nil {
		n++
	}
	if y.Var != "" {
		n++
	}
	if y.Binary != nil {
		n++
	}
	if y.Unary != nil {
		n++
	}
	if y.Call != nil {
		n++
	}
	if y.Field != nil {
		n++
	}
	if y.New != nil {
		n++
	}
	return n
}
