package cflat

import (
	"fmt"
	"io"
	"strings"

	"github.com/keel-lang/keelc/pkg/ctypes"
)

// includes every emitted unit needs: fixed-width ints, bool, and the
// stdio home of the println family.
var includes = []string{"<stdint.h>", "<stdbool.h>", "<stdio.h>"}

// Printer emits cflat in C-like text form. Output is deterministic:
// the same unit always produces the same bytes. Comments turns on the
// annotations (body headers, elided-return markers) that the plain
// emission leaves out.
type Printer struct {
	w        io.Writer
	indent   int
	Comments bool
}

// NewPrinter creates a new cflat printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0}
}

// PrintUnit prints a complete unit: includes, struct definitions, one
// forward declaration per function in unit order, then the definitions in
// the same order.
func (p *Printer) PrintUnit(unit *Unit) {
	for _, inc := range includes {
		fmt.Fprintf(p.w, "#include %s\n", inc)
	}
	fmt.Fprintln(p.w)

	for _, s := range unit.Structs {
		p.printStructDef(s)
	}

	for _, fn := range unit.Functions {
		fmt.Fprintf(p.w, "%s;\n", signature(fn))
	}
	fmt.Fprintln(p.w)

	for _, fn := range unit.Functions {
		p.PrintFunction(fn)
	}
}

func (p *Printer) printStructDef(s ctypes.Tstruct) {
	fmt.Fprintf(p.w, "struct %s {\n", s.Name)
	for _, f := range s.Fields {
		fmt.Fprintf(p.w, "    %s %s;\n", f.Type.String(), f.Name)
	}
	fmt.Fprintln(p.w, "};")
	fmt.Fprintln(p.w)
}

// PrintFunction prints one function definition followed by a blank line.
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s {\n", signature(fn))
	p.indent++

	if p.Comments {
		p.writeIndent()
		fmt.Fprintln(p.w, "// locals")
	}

	for _, s := range fn.Body {
		p.printStmt(s)
	}

	p.indent--
	fmt.Fprintln(p.w, "}")
	fmt.Fprintln(p.w)
}

func signature(fn *Function) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s(", fn.Return.String(), fn.Name)
	if len(fn.Params) == 0 {
		b.WriteString("void")
	} else {
		for i, param := range fn.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %s", param.Type.String(), param.Name)
		}
	}
	b.WriteString(")")
	return b.String()
}

func (p *Printer) writeIndent() {
	fmt.Fprint(p.w, strings.Repeat("    ", p.indent))
}

func (p *Printer) printStmt(stmt Stmt) {
	switch s := stmt.(type) {
	case Sdecl:
		p.writeIndent()
		fmt.Fprintf(p.w, "%s ", s.Typ.String())
		p.printRef(s.Target)
		fmt.Fprintln(p.w, ";")

	case Sdef:
		p.writeIndent()
		fmt.Fprintf(p.w, "%s %s = ", defType(s), s.Temp)
		p.printRef(s.RHS)
		fmt.Fprintln(p.w, ";")

	case Sset:
		p.writeIndent()
		fmt.Fprintf(p.w, "%s = ", s.Temp)
		p.printRef(s.RHS)
		fmt.Fprintln(p.w, ";")

	case Sassign:
		p.writeIndent()
		p.printRef(s.LHS)
		fmt.Fprint(p.w, " = ")
		p.printRef(s.RHS)
		fmt.Fprintln(p.w, ";")

	case Scall:
		p.writeIndent()
		if s.Result != nil {
			fmt.Fprintf(p.w, "auto %s = ", *s.Result)
		}
		fmt.Fprintf(p.w, "%s(", s.Func)
		for i, arg := range s.Args {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.printRef(arg)
		}
		fmt.Fprintln(p.w, ");")

	case Sreturn:
		p.writeIndent()
		fmt.Fprint(p.w, "return")
		if s.Value != nil {
			fmt.Fprint(p.w, " ")
			p.printRef(s.Value)
		}
		fmt.Fprint(p.w, ";")
		if s.Elided && p.Comments {
			fmt.Fprint(p.w, " // RVO")
		}
		fmt.Fprintln(p.w)

	default:
		p.writeIndent()
		fmt.Fprintf(p.w, "/* unknown stmt %T */\n", stmt)
	}
}

// defType picks the spelling left of a merged definition: pooled-string
// loads keep the original backend's auto, operator results use the
// concrete type.
func defType(s Sdef) string {
	if _, ok := s.RHS.(Rstring); ok {
		return "auto"
	}
	return s.Typ.String()
}

func (p *Printer) printRef(ref Ref) {
	switch r := ref.(type) {
	case Rtemp:
		fmt.Fprint(p.w, r.ID.String())

	case Rvar:
		fmt.Fprint(p.w, r.Name)

	case Rfield:
		p.printRefParen(r.Base)
		fmt.Fprintf(p.w, ".%s", r.Name)

	case Rint:
		fmt.Fprintf(p.w, "%d", r.Value)

	case Rfloat:
		fmt.Fprintf(p.w, "%g", r.Value)

	case Rbool:
		if r.Value {
			fmt.Fprint(p.w, "true")
		} else {
			fmt.Fprint(p.w, "false")
		}

	case Rstring:
		fmt.Fprintf(p.w, "const.string.%q", r.Text)

	case Rbinop:
		p.printRefParen(r.Left)
		fmt.Fprintf(p.w, " %s ", r.Op.String())
		p.printRefParen(r.Right)

	case Runop:
		fmt.Fprint(p.w, r.Op.String())
		p.printRefParen(r.Operand)

	default:
		fmt.Fprintf(p.w, "/* unknown ref %T */", ref)
	}
}

// printRefParen prints a reference, wrapping in parens if needed
func (p *Printer) printRefParen(ref Ref) {
	needsParen := false
	switch ref.(type) {
	case Rbinop:
		needsParen = true
	}

	if needsParen {
		fmt.Fprint(p.w, "(")
		p.printRef(ref)
		fmt.Fprint(p.w, ")")
	} else {
		p.printRef(ref)
	}
}
