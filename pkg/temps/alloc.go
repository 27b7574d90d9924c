// Package temps manages the temporary variables introduced by lowering.
// One Allocator serves a whole lowering session: ids are handed out in
// strictly increasing order and never reused, across every function the
// session lowers. Per-function bookkeeping (type, liveness) lives in a
// Table owned by that function's lowering.
package temps

import (
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/keel-lang/keelc/pkg/ctypes"
)

// ID identifies one temporary. Ids start at 1; 0 is never allocated.
type ID int

// String returns the emitted spelling of the temporary (".tmp3").
func (id ID) String() string {
	return ".tmp" + strconv.Itoa(int(id))
}

// Liveness tracks where a temporary is in its lifecycle. Every temp is
// assigned exactly once; tree-shaped lowering reads it at most once.
type Liveness int

const (
	// Live means assigned but not yet read.
	Live Liveness = iota
	// Consumed means the single read has happened.
	Consumed
	// Elided means the temp's declaration was folded away by return
	// elision; only the merged definition and the return mention it.
	Elided
)

func (l Liveness) String() string {
	names := []string{"live", "consumed", "elided"}
	if int(l) < len(names) {
		return names[l]
	}
	return "?"
}

// Temp is the allocator-side record of one temporary.
type Temp struct {
	ID       ID
	Type     ctypes.Type
	Liveness Liveness
}

// Allocator hands out temporary ids for one lowering session. Safe for
// concurrent use; parallel function lowering shares a single Allocator so
// ids stay globally unique.
type Allocator struct {
	mu      sync.Mutex
	next    ID
	session string
}

// New creates an allocator for a fresh lowering session.
func New() *Allocator {
	return &Allocator{
		next:    1,
		session: uuid.Must(uuid.NewV7()).String(),
	}
}

// Next returns the next temporary id. Ids are strictly increasing and
// never reused; there is no reset within a session. Exhausting the id
// space is a fatal internal error.
func (a *Allocator) Next() ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	if id < 1 {
		panic("temps: temporary id space exhausted")
	}
	a.next++
	return id
}

// Allocated returns how many ids the session has handed out.
func (a *Allocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.next) - 1
}

// Session returns the session's identity token, used to tag diagnostics
// when several lowering sessions run in one process.
func (a *Allocator) Session() string {
	return a.session
}

// Table records the temporaries one function's lowering created, in
// allocation order. Not safe for concurrent use; each function's
// lowering owns its table.
type Table struct {
	temps []Temp
	index map[ID]int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[ID]int)}
}

// Add records a freshly allocated temporary. Liveness starts at Live.
func (t *Table) Add(id ID, typ ctypes.Type) *Temp {
	t.temps = append(t.temps, Temp{ID: id, Type: typ, Liveness: Live})
	t.index[id] = len(t.temps) - 1
	return &t.temps[len(t.temps)-1]
}

// Lookup returns the record for id, if this table owns it.
func (t *Table) Lookup(id ID) (*Temp, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.temps[i], true
}

// All returns the records in allocation order. The slice aliases the
// table; callers must not grow it.
func (t *Table) All() []Temp {
	return t.temps
}

// Len returns the number of recorded temporaries.
func (t *Table) Len() int {
	return len(t.temps)
}
