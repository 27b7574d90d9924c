package cflat

// Key returns the identifier an Rtemp or Rvar names, usable as a map key.
// Temps spell ".tmpN" and named slots use their plain name; C identifiers
// cannot start with a dot, so the two spaces never collide. Other ref
// kinds return "".
func Key(r Ref) string {
	switch ref := r.(type) {
	case Rtemp:
		return ref.ID.String()
	case Rvar:
		return ref.Name
	}
	return ""
}

// Root returns the atomic slot a reference ultimately touches: the ref
// itself for Rtemp/Rvar, the base slot for field references.
func Root(r Ref) (Ref, bool) {
	switch ref := r.(type) {
	case Rtemp, Rvar:
		return r, true
	case Rfield:
		return Root(ref.Base)
	}
	return nil, false
}

func appendReads(r Ref, out []Ref) []Ref {
	switch ref := r.(type) {
	case Rtemp, Rvar:
		return append(out, r)
	case Rfield:
		if base, ok := Root(ref.Base); ok {
			out = append(out, base)
		}
	case Rbinop:
		out = appendReads(ref.Left, out)
		out = appendReads(ref.Right, out)
	case Runop:
		out = appendReads(ref.Operand, out)
	}
	return out
}

// StmtDefs returns the slots s declares. A merged definition or a call
// with a result slot declares its temporary; Sdecl declares its target.
// Result temps carry no type here; the owning function's table has it.
func StmtDefs(s Stmt) []Ref {
	switch st := s.(type) {
	case Sdecl:
		return []Ref{st.Target}
	case Sdef:
		return []Ref{Rtemp{ID: st.Temp, Typ: st.Typ}}
	case Scall:
		if st.Result != nil {
			return []Ref{Rtemp{ID: *st.Result}}
		}
	}
	return nil
}

// StmtWrites returns the slots s stores into, including the slot of a
// merged definition. Writing a field counts as writing its base slot.
func StmtWrites(s Stmt) []Ref {
	switch st := s.(type) {
	case Sdef:
		return []Ref{Rtemp{ID: st.Temp, Typ: st.Typ}}
	case Sset:
		return []Ref{Rtemp{ID: st.Temp}}
	case Sassign:
		if base, ok := Root(st.LHS); ok {
			return []Ref{base}
		}
	case Scall:
		if st.Result != nil {
			return []Ref{Rtemp{ID: *st.Result}}
		}
	}
	return nil
}

// StmtReads returns the slots whose values s reads. A store through a
// field reference uses the base slot's storage, not its value, so the
// base shows up in StmtWrites only. Literal and pooled-string operands
// read nothing.
func StmtReads(s Stmt) []Ref {
	var out []Ref
	switch st := s.(type) {
	case Sdef:
		out = appendReads(st.RHS, out)
	case Sset:
		out = appendReads(st.RHS, out)
	case Sassign:
		out = appendReads(st.RHS, out)
	case Scall:
		for _, a := range st.Args {
			out = appendReads(a, out)
		}
	case Sreturn:
		if st.Value != nil {
			out = appendReads(st.Value, out)
		}
	}
	return out
}

// WalkRefs calls fn for every reference occurring in s, composite forms
// and their nested operands included. Declaration targets are visited
// too; callers that only care about uses should filter by statement kind.
func WalkRefs(s Stmt, fn func(Ref)) {
	var walk func(r Ref)
	walk = func(r Ref) {
		if r == nil {
			return
		}
		fn(r)
		switch ref := r.(type) {
		case Rfield:
			walk(ref.Base)
		case Rbinop:
			walk(ref.Left)
			walk(ref.Right)
		case Runop:
			walk(ref.Operand)
		}
	}
	switch st := s.(type) {
	case Sdecl:
		walk(st.Target)
	case Sdef:
		walk(st.RHS)
	case Sset:
		walk(st.RHS)
	case Sassign:
		walk(st.LHS)
		walk(st.RHS)
	case Scall:
		for _, a := range st.Args {
			walk(a)
		}
	case Sreturn:
		walk(st.Value)
	}
}
