package lookup

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/graph"
)

// Key identifies a table: one table per (operator kind, bit width, scales,
// operator parameter). Structurally identical operators across the graph
// share a single table, which keeps key material sublinear in operator
// count.
type Key struct {
	Op       graph.OpKind
	Bits     int
	ScaleIn  int
	ScaleOut int
	// Param carries the operator's scalar parameter where one exists:
	// LeakyReLU slope, GreaterThan threshold. Zero otherwise.
	Param float64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/bits=%d/in=%d/out=%d/p=%g", k.Op, k.Bits, k.ScaleIn, k.ScaleOut, k.Param)
}

// Table maps every value of the signed bit-width domain to the operator's
// output. Read-only once built; shared across all instances of the operator
// in a circuit.
type Table struct {
	Key Key
	// Min is the smallest domain value, -2^(bits-1).
	Min int64
	// Out[i] is the output for input Min+i.
	Out []int64
}

// Rows returns the table's row count, 2^bits.
func (t *Table) Rows() int { return len(t.Out) }

// Cells returns the total cell count (input and output columns).
func (t *Table) Cells() int { return 2 * len(t.Out) }

// At returns the output for domain value x. x must be in the domain.
func (t *Table) At(x int64) int64 { return t.Out[x-t.Min] }

// OverflowError reports a table domain exceeding the configured cell budget.
// Bit widths are kept small precisely so this never fires in practice.
type OverflowError struct {
	Key    Key
	Cells  int
	Budget int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("lookup: table %s needs %d cells, budget is %d", e.Key, e.Cells, e.Budget)
}

// Manager caches tables for one compile session. Construction and teardown
// are tied to the compile call; concurrent compilations of different
// circuits each get their own manager.
type Manager struct {
	mu         sync.Mutex
	cellBudget int
	tables     map[Key]*Table
}

// NewManager returns a manager enforcing the given total-cell budget per
// table. A non-positive budget disables the check.
func NewManager(cellBudget int) *Manager {
	return &Manager{
		cellBudget: cellBudget,
		tables:     make(map[Key]*Table),
	}
}

// Get returns the cached table for key, building it on first use by
// enumerating the full signed domain through the reference function.
func (m *Manager) Get(key Key) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[key]; ok {
		return t, nil
	}

	rows := 1 << key.Bits
	if m.cellBudget > 0 && 2*rows > m.cellBudget {
		return nil, &OverflowError{Key: key, Cells: 2 * rows, Budget: m.cellBudget}
	}

	t := &Table{
		Key: key,
		Min: -(int64(1) << (key.Bits - 1)),
		Out: make([]int64, rows),
	}
	for i := range t.Out {
		t.Out[i] = Eval(key, t.Min+int64(i))
	}
	m.tables[key] = t

	log := logger.Logger()
	log.Debug().Str("table", key.String()).Int("rows", rows).Msg("lookup table built")
	return t, nil
}

// Len returns the number of distinct tables built in this session.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}
