// Package cflatgen implements the transformation from the typed input IR
// to flat statement form. This chains the lowering, sequencing, and
// return elision passes over every function of a unit.
package cflatgen

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/keel-lang/keelc/pkg/cflat"
	"github.com/keel-lang/keelc/pkg/hoist"
	"github.com/keel-lang/keelc/pkg/ir"
	"github.com/keel-lang/keelc/pkg/lower"
	"github.com/keel-lang/keelc/pkg/rvo"
	"github.com/keel-lang/keelc/pkg/temps"
)

// Options configure the unit pipeline.
type Options struct {
	// DisableRVO leaves every trailing return fully materialized.
	DisableRVO bool

	// Parallel lowers functions concurrently over the shared allocator.
	// Ids stay globally unique, but which id lands in which function
	// then depends on scheduling, so the flag defaults off.
	Parallel bool

	// Validate checks every lowered function against the single
	// assignment and declare-before-use rules before returning it.
	Validate bool

	// Stats, when non-nil, accumulates return elision counts.
	Stats *rvo.Stats
}

// TranslateUnit lowers every function of unit, drawing temporary ids from
// alloc. Functions are processed in declaration order and the result keeps
// that order regardless of opts.Parallel.
func TranslateUnit(unit *ir.Unit, alloc *temps.Allocator, opts Options) (*cflat.Unit, error) {
	result := &cflat.Unit{
		Name:      unit.Name,
		Structs:   unit.Structs,
		Functions: make([]*cflat.Function, len(unit.Functions)),
		Strings:   cflat.NewConstPool(),
	}

	elided := make([]bool, len(unit.Functions))

	if opts.Parallel {
		errs := make([]error, len(unit.Functions))
		var wg sync.WaitGroup
		for i := range unit.Functions {
			wg.Add(1)
			go func(i int, fn *ir.Function) {
				defer wg.Done()
				result.Functions[i], elided[i], errs[i] = translateFunction(fn, alloc, result.Strings, opts)
			}(i, &unit.Functions[i])
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	} else {
		for i := range unit.Functions {
			fn, changed, err := translateFunction(&unit.Functions[i], alloc, result.Strings, opts)
			if err != nil {
				return nil, err
			}
			result.Functions[i] = fn
			elided[i] = changed
		}
	}

	if opts.Stats != nil {
		for _, changed := range elided {
			opts.Stats.Record(changed)
		}
	}
	slog.Debug("translated unit",
		"unit", unit.Name,
		"functions", len(result.Functions),
		"temps", alloc.Allocated(),
		"session", alloc.Session())
	return result, nil
}

// translateFunction runs one function through the pass pipeline.
func translateFunction(fn *ir.Function, alloc *temps.Allocator, pool *cflat.ConstPool, opts Options) (*cflat.Function, bool, error) {
	table := temps.NewTable()
	lowerer := lower.New(alloc, table, pool)

	// Lower the body statement by statement
	var body []cflat.Stmt
	for _, s := range fn.Body {
		stmts, err := lowerer.LowerStmt(s)
		if err != nil {
			return nil, false, fmt.Errorf("lower %s: %w", fn.Name, err)
		}
		body = append(body, stmts...)
	}

	params := make([]cflat.VarDecl, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = cflat.VarDecl{Name: p.Name, Type: p.Typ}
	}
	out := &cflat.Function{
		Name:   fn.Name,
		Params: params,
		Return: fn.Return,
		Temps:  table,
		Body:   body,
	}

	// Order declarations and merge declare+store pairs
	if err := hoist.Sequence(out); err != nil {
		return nil, false, err
	}

	// Elide the trailing return copy where sound
	changed := false
	if !opts.DisableRVO {
		changed = rvo.Optimize(out)
	}

	cflat.RefreshLiveness(out)
	if opts.Validate {
		if problems := cflat.Validate(out); len(problems) > 0 {
			return nil, false, fmt.Errorf("validate %s: %s", fn.Name, strings.Join(problems, "; "))
		}
	}

	slog.Debug("lowered function",
		"function", fn.Name,
		"temps", table.Len(),
		"elided", changed)
	return out, changed, nil
}
