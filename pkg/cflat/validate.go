package cflat

import (
	"fmt"

	"github.com/keel-lang/keelc/pkg/temps"
)

// Validate checks a lowered function against the structural invariants
// of the flat form and returns a list of violations. An empty slice
// means the function is well formed.
//
// The invariants: every slot is declared before its first use and
// declared at most once; every temporary is assigned exactly once and
// read at most once (lowering trees gives each intermediate value a
// single consumer); return operands are never unmaterialized operator
// expressions. Named slots may be re-assigned and re-read freely.
func Validate(fn *Function) []string {
	var errors []string

	declared := make(map[string]bool)
	assigned := make(map[string]bool)
	tempReads := make(map[string]int)

	for _, param := range fn.Params {
		declared[param.Name] = true
		assigned[param.Name] = true
	}

	isTemp := func(r Ref) bool {
		_, ok := r.(Rtemp)
		return ok
	}

	for i, stmt := range fn.Body {
		ctx := fmt.Sprintf("statement %d", i)

		// Reads resolve against the state before this statement.
		for _, r := range StmtReads(stmt) {
			key := Key(r)
			if !declared[key] {
				errors = append(errors, fmt.Sprintf("%s: %s read before declaration", ctx, key))
				continue
			}
			if !assigned[key] {
				errors = append(errors, fmt.Sprintf("%s: %s read before assignment", ctx, key))
			}
			if isTemp(r) {
				tempReads[key]++
				if tempReads[key] > 1 {
					errors = append(errors, fmt.Sprintf("%s: temporary %s read more than once", ctx, key))
				}
			}
		}

		for _, r := range StmtDefs(stmt) {
			key := Key(r)
			if declared[key] {
				errors = append(errors, fmt.Sprintf("%s: %s declared twice", ctx, key))
			}
			declared[key] = true
			if isTemp(r) && fn.Temps != nil {
				if _, ok := fn.Temps.Lookup(r.(Rtemp).ID); !ok {
					errors = append(errors, fmt.Sprintf("%s: %s missing from temp table", ctx, key))
				}
			}
		}

		// Sdef and result-carrying calls count as declaration plus
		// first assignment; any write to an already-assigned temp
		// breaks single assignment.
		for _, r := range StmtWrites(stmt) {
			key := Key(r)
			if !declared[key] {
				errors = append(errors, fmt.Sprintf("%s: %s assigned before declaration", ctx, key))
			}
			if isTemp(r) && assigned[key] {
				errors = append(errors, fmt.Sprintf("%s: temporary %s assigned twice", ctx, key))
			}
			assigned[key] = true
		}

		if ret, ok := stmt.(Sreturn); ok && ret.Value != nil {
			switch ret.Value.(type) {
			case Rbinop, Runop:
				errors = append(errors, fmt.Sprintf("%s: return operand is not materialized", ctx))
			}
		}
	}

	return errors
}

// RefreshLiveness recomputes temp liveness from the body: a live temp
// whose value has been read becomes consumed. Elided temps stay elided;
// that state is terminal.
func RefreshLiveness(fn *Function) {
	if fn.Temps == nil {
		return
	}
	for _, stmt := range fn.Body {
		for _, r := range StmtReads(stmt) {
			t, ok := r.(Rtemp)
			if !ok {
				continue
			}
			rec, ok := fn.Temps.Lookup(t.ID)
			if !ok {
				continue
			}
			if rec.Liveness == temps.Live {
				rec.Liveness = temps.Consumed
			}
		}
	}
}
