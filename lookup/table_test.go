package lookup

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorzk/tensorzk/graph"
)

func TestManagerDedup(t *testing.T) {
	m := NewManager(0)
	k := Key{Op: graph.OpReLU, Bits: 8, ScaleIn: 4, ScaleOut: 4}

	a, err := m.Get(k)
	require.NoError(t, err)
	b, err := m.Get(k)
	require.NoError(t, err)
	require.Same(t, a, b, "identical keys must share one table")
	require.Equal(t, 1, m.Len())

	// a different parameter is a different table
	_, err = m.Get(Key{Op: graph.OpLeakyReLU, Bits: 8, ScaleIn: 4, ScaleOut: 4, Param: 0.1})
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
}

func TestCellBudget(t *testing.T) {
	m := NewManager(256)
	k := Key{Op: graph.OpReLU, Bits: 8, ScaleIn: 4, ScaleOut: 4}

	_, err := m.Get(k)
	var oerr *OverflowError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, 512, oerr.Cells)
	require.Equal(t, 256, oerr.Budget)

	// 2^7 rows = 256 cells fits exactly
	_, err = m.Get(Key{Op: graph.OpReLU, Bits: 7, ScaleIn: 4, ScaleOut: 4})
	require.NoError(t, err)
}

func TestReLUTable(t *testing.T) {
	m := NewManager(0)
	tab, err := m.Get(Key{Op: graph.OpReLU, Bits: 8, ScaleIn: 4, ScaleOut: 4})
	require.NoError(t, err)

	require.Equal(t, 256, tab.Rows())
	require.Equal(t, int64(-128), tab.Min)
	require.Equal(t, int64(0), tab.At(-128))
	require.Equal(t, int64(0), tab.At(-1))
	require.Equal(t, int64(0), tab.At(0))
	require.Equal(t, int64(5), tab.At(5))
	require.Equal(t, int64(127), tab.At(127))
}

func TestRescaleRounding(t *testing.T) {
	k := Key{Op: graph.OpRescale, Bits: 12, ScaleIn: 8, ScaleOut: 4}

	// divide by 16, half away from zero
	require.Equal(t, int64(0), Eval(k, 7))
	require.Equal(t, int64(1), Eval(k, 8))
	require.Equal(t, int64(1), Eval(k, 16))
	require.Equal(t, int64(-1), Eval(k, -8))
	require.Equal(t, int64(0), Eval(k, -7))
	require.Equal(t, int64(2), Eval(k, 24))
}

func TestGreaterThanEval(t *testing.T) {
	// threshold 1.0 at scale 4 means the cut sits at fixed-point 16
	k := Key{Op: graph.OpGreaterThan, Bits: 8, ScaleIn: 4, ScaleOut: 0, Param: 1.0}
	require.Equal(t, int64(0), Eval(k, 16))
	require.Equal(t, int64(1), Eval(k, 17))
	require.Equal(t, int64(0), Eval(k, -100))
}

func TestSigmoidEval(t *testing.T) {
	k := Key{Op: graph.OpSigmoid, Bits: 8, ScaleIn: 4, ScaleOut: 4}
	// sigmoid(0) = 0.5 -> 8 at scale 4
	require.Equal(t, int64(8), Eval(k, 0))
	// saturates toward 16 (=1.0) and 0
	require.Equal(t, int64(16), Eval(k, 127))
	require.Equal(t, int64(0), Eval(k, -128))
}

func TestClampBounds(t *testing.T) {
	require.Equal(t, int64(1)<<62, clampInt64(math.Inf(1)))
	require.Equal(t, -(int64(1) << 62), clampInt64(math.Inf(-1)))
	require.Equal(t, int64(7), clampInt64(7))

	// exp at a wide scale overflows float range and must stay defined
	k := Key{Op: graph.OpExp, Bits: 16, ScaleIn: 8, ScaleOut: 8}
	require.Equal(t, int64(1)<<62, Eval(k, 32767))
}

func TestKeyForNode(t *testing.T) {
	k, ok := KeyForNode(graph.OpRescale, graph.Attrs{ShiftBits: 4}, 8, 4, 8)
	require.True(t, ok)
	require.Equal(t, 12, k.Bits, "rescale domain carries shift headroom")

	k, ok = KeyForNode(graph.OpLeakyReLU, graph.Attrs{Slope: 0.01}, 4, 4, 8)
	require.True(t, ok)
	require.Equal(t, 0.01, k.Param)

	_, ok = KeyForNode(graph.OpAdd, graph.Attrs{}, 4, 4, 8)
	require.False(t, ok)

	require.Equal(t, 9, CompareKey(4, 8).Bits)
}
