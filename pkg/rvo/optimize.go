// Package rvo elides the copy at a function's trailing
// materialize-then-return pattern. When the final two statements define a
// fresh temporary and immediately return it, the return is marked elided
// and the temporary's declaration footprint collapses into its definition.
// The rewrite is best-effort: any unmet precondition leaves the body
// untouched, and a body already rewritten never rewrites again.
package rvo

import (
	"github.com/keel-lang/keelc/pkg/cflat"
	"github.com/keel-lang/keelc/pkg/ctypes"
	"github.com/keel-lang/keelc/pkg/temps"
)

// Stats counts elision work across a unit for driver reporting.
type Stats struct {
	Scanned int
	Elided  int
}

// Record notes one function's outcome.
func (s *Stats) Record(changed bool) {
	s.Scanned++
	if changed {
		s.Elided++
	}
}

// Optimize rewrites fn's trailing return in place and reports whether it
// changed anything. The rewrite fires only when all of the following hold:
// the body's one and only return is its final statement, the returned
// value is a temporary defined by the immediately preceding statement,
// that temporary is scalar, is read nowhere else, and is never projected
// through a field reference (which would imply its address matters).
// A split Sdecl+Sset tail merges into an Sdef as part of the rewrite.
func Optimize(fn *cflat.Function) bool {
	n := len(fn.Body)
	if n < 2 {
		return false
	}
	ret, ok := fn.Body[n-1].(cflat.Sreturn)
	if !ok || ret.Elided || !singleReturn(fn.Body) {
		return false
	}
	tmp, ok := ret.Value.(cflat.Rtemp)
	if !ok {
		return false
	}
	if fn.Temps != nil {
		if rec, ok := fn.Temps.Lookup(tmp.ID); ok && rec.Liveness == temps.Elided {
			return false
		}
	}

	splitDecl := false
	var typ ctypes.Type
	switch s := fn.Body[n-2].(type) {
	case cflat.Sdef:
		if s.Temp != tmp.ID {
			return false
		}
		typ = s.Typ
	case cflat.Scall:
		if s.Result == nil || *s.Result != tmp.ID {
			return false
		}
		t, ok := tempType(fn, tmp.ID)
		if !ok {
			return false
		}
		typ = t
	case cflat.Sset:
		if s.Temp != tmp.ID || n < 3 {
			return false
		}
		decl, ok := fn.Body[n-3].(cflat.Sdecl)
		if !ok {
			return false
		}
		target, ok := decl.Target.(cflat.Rtemp)
		if !ok || target.ID != tmp.ID {
			return false
		}
		splitDecl = true
		typ = decl.Typ
	default:
		return false
	}

	if !ctypes.Scalar(typ) {
		return false
	}
	if countReads(fn.Body[:n-1], tmp.ID) != 0 {
		return false
	}
	if fieldProjected(fn.Body, tmp.ID) {
		return false
	}

	if splitDecl {
		set := fn.Body[n-2].(cflat.Sset)
		merged := cflat.Sdef{Temp: tmp.ID, Typ: typ, RHS: set.RHS}
		fn.Body = append(fn.Body[:n-3], merged, fn.Body[n-1])
		n = len(fn.Body)
	}
	ret.Elided = true
	fn.Body[n-1] = ret
	if fn.Temps != nil {
		if rec, ok := fn.Temps.Lookup(tmp.ID); ok {
			rec.Liveness = temps.Elided
		}
	}
	return true
}

func singleReturn(body []cflat.Stmt) bool {
	count, last := 0, -1
	for i, s := range body {
		if _, ok := s.(cflat.Sreturn); ok {
			count++
			last = i
		}
	}
	return count == 1 && last == len(body)-1
}

func countReads(body []cflat.Stmt, id temps.ID) int {
	key := id.String()
	count := 0
	for _, s := range body {
		for _, r := range cflat.StmtReads(s) {
			if cflat.Key(r) == key {
				count++
			}
		}
	}
	return count
}

// fieldProjected reports whether id ever appears as the base of a field
// reference anywhere in the body.
func fieldProjected(body []cflat.Stmt, id temps.ID) bool {
	key := id.String()
	found := false
	for _, s := range body {
		cflat.WalkRefs(s, func(r cflat.Ref) {
			fld, ok := r.(cflat.Rfield)
			if !ok {
				return
			}
			if base, ok := cflat.Root(fld.Base); ok && cflat.Key(base) == key {
				found = true
			}
		})
	}
	return found
}

func tempType(fn *cflat.Function, id temps.ID) (ctypes.Type, bool) {
	if fn.Temps == nil {
		return nil, false
	}
	rec, ok := fn.Temps.Lookup(id)
	if !ok {
		return nil, false
	}
	return rec.Type, true
}
