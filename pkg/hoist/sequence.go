// Package hoist orders a lowered function body for emission. Declarations
// move up until they sit before the first use of their slot, and an
// adjacent declare-plus-store pair for a temporary collapses into a merged
// definition. Any ordering the pass cannot repair without crossing a data
// dependency signals a defect in the producing lowerer, not bad user input.
package hoist

import (
	"github.com/keel-lang/keelc/pkg/cflat"
)

// ConsistencyError reports a statement list the sequencer cannot repair.
type ConsistencyError struct {
	Function string
	Ident    string
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return "sequence " + e.Function + ": " + e.Ident + " " + e.Reason
}

// Sequence rewrites fn.Body so that every declaration precedes the first
// use of its slot and adjacent Sdecl+Sset pairs for the same temporary
// become a single Sdef. Statements keep their relative order except for
// hoisted declarations. Named slots set through Sassign never merge; their
// declaration and store stay separate statements.
func Sequence(fn *cflat.Function) error {
	if err := checkDuplicates(fn); err != nil {
		return err
	}
	body, err := hoistDecls(fn)
	if err != nil {
		return err
	}
	fn.Body = mergeAdjacent(body)
	return nil
}

func checkDuplicates(fn *cflat.Function) error {
	declared := make(map[string]bool)
	for _, s := range fn.Body {
		for _, d := range cflat.StmtDefs(s) {
			key := cflat.Key(d)
			if key == "" {
				continue
			}
			if declared[key] {
				return &ConsistencyError{Function: fn.Name, Ident: key, Reason: "declared twice"}
			}
			declared[key] = true
		}
	}
	return nil
}

// hoistDecls builds the reordered body. Each defining statement is placed
// before the earliest already-placed statement that touches one of its
// slots; everything else appends in input order. A hoist is legal only
// when the moved statement shares no data dependency with the statements
// it crosses, which for a bare Sdecl is always true. Merged definitions
// read their operands and write their temporary, so a use sitting above
// one is unrepairable and rejected here.
func hoistDecls(fn *cflat.Function) ([]cflat.Stmt, error) {
	out := make([]cflat.Stmt, 0, len(fn.Body))
	for _, s := range fn.Body {
		at := len(out)
		if defs := cflat.StmtDefs(s); len(defs) > 0 {
			defKeys := keySet(defs)
			for i, placed := range out {
				if touchesAny(placed, defKeys) {
					at = i
					break
				}
			}
			for _, crossed := range out[at:] {
				if key, ok := conflict(s, crossed); ok {
					return nil, &ConsistencyError{
						Function: fn.Name,
						Ident:    cflat.Key(defs[0]),
						Reason:   "declaration cannot hoist past a statement touching " + key,
					}
				}
			}
		}
		out = append(out, nil)
		copy(out[at+1:], out[at:])
		out[at] = s
	}
	return out, nil
}

func mergeAdjacent(body []cflat.Stmt) []cflat.Stmt {
	out := make([]cflat.Stmt, 0, len(body))
	for i := 0; i < len(body); i++ {
		if decl, ok := body[i].(cflat.Sdecl); ok && i+1 < len(body) {
			if tmp, ok := decl.Target.(cflat.Rtemp); ok {
				if set, ok := body[i+1].(cflat.Sset); ok && set.Temp == tmp.ID {
					out = append(out, cflat.Sdef{Temp: tmp.ID, Typ: decl.Typ, RHS: set.RHS})
					i++
					continue
				}
			}
		}
		out = append(out, body[i])
	}
	return out
}

// conflict reports whether moving moved above crossed inverts a data
// dependency between them. The offending slot is returned for diagnostics.
func conflict(moved, crossed cflat.Stmt) (string, bool) {
	movedReads := keySet(cflat.StmtReads(moved))
	movedWrites := keySet(cflat.StmtWrites(moved))
	for _, w := range cflat.StmtWrites(crossed) {
		if key := cflat.Key(w); movedReads[key] {
			return key, true
		}
	}
	for _, r := range cflat.StmtReads(crossed) {
		if key := cflat.Key(r); movedWrites[key] {
			return key, true
		}
	}
	for _, w := range cflat.StmtWrites(crossed) {
		if key := cflat.Key(w); movedWrites[key] {
			return key, true
		}
	}
	return "", false
}

func touchesAny(s cflat.Stmt, keys map[string]bool) bool {
	for _, r := range cflat.StmtReads(s) {
		if keys[cflat.Key(r)] {
			return true
		}
	}
	for _, w := range cflat.StmtWrites(s) {
		if keys[cflat.Key(w)] {
			return true
		}
	}
	return false
}

func keySet(refs []cflat.Ref) map[string]bool {
	if len(refs) == 0 {
		return nil
	}
	set := make(map[string]bool, len(refs))
	for _, r := range refs {
		if key := cflat.Key(r); key != "" {
			set[key] = true
		}
	}
	return set
}
