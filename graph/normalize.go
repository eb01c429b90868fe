package graph

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/tensor"
)

// Normalize canonicalizes a raw graph: structural validation, shape
// inference, constant folding and fusion of adjacent linear operators.
// The input graph is untouched; a new graph is returned.
func Normalize(g *Graph) (*Graph, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	out := g.Clone()
	if err := out.InferShapes(); err != nil {
		return nil, err
	}
	folded := out.foldConstants()
	fused := out.fuseMatMuls()
	out = out.compact()

	log := logger.Logger()
	log.Debug().
		Int("nodes", len(out.Nodes)).
		Int("folded", folded).
		Int("fused", fused).
		Msg("graph normalized")
	return out, nil
}

// foldConstants replaces every node whose inputs are all constants with a
// single constant holding the evaluated result. Returns the fold count.
func (g *Graph) foldConstants() int {
	count := 0
	for id := range g.Nodes {
		n := &g.Nodes[id]
		if n.Op == OpInput || n.Op == OpConst || len(n.Inputs) == 0 {
			continue
		}
		in := make([]*tensor.Tensor[float64], len(n.Inputs))
		allConst := true
		for i, src := range n.Inputs {
			if g.Nodes[src].Op != OpConst || g.Nodes[src].Value == nil {
				allConst = false
				break
			}
			in[i] = g.Nodes[src].Value
		}
		if !allConst {
			continue
		}
		val, ok := evalFloat(n, in)
		if !ok {
			continue
		}
		g.Nodes[id] = Node{Op: OpConst, Value: val, Shape: append([]int{}, n.Shape...)}
		count++
	}
	return count
}

// fuseMatMuls rewrites MatMul(MatMul(x, A), B) with constant A and B into
// MatMul(x, A*B), when the inner product is consumed only once. Each fusion
// removes one full matrix of constraints from the lowered circuit.
func (g *Graph) fuseMatMuls() int {
	uses := g.useCounts()
	count := 0
	// appending the fused constant reallocates the arena, so all writes go
	// through fresh indexing, never through pointers taken before the append
	for id := 0; id < len(g.Nodes); id++ {
		if g.Nodes[id].Op != OpMatMul {
			continue
		}
		inner := g.Nodes[id].Inputs[0]
		if g.Nodes[inner].Op != OpMatMul || uses[inner] != 1 {
			continue
		}
		a := g.Nodes[g.Nodes[inner].Inputs[1]]
		b := g.Nodes[g.Nodes[id].Inputs[1]]
		if a.Op != OpConst || b.Op != OpConst || len(a.Shape) != 2 || len(b.Shape) != 2 {
			continue
		}
		fusedW := MatMulFloat(a.Value, b.Value)
		left := g.Nodes[inner].Inputs[0]
		g.Nodes = append(g.Nodes, Node{Op: OpConst, Value: fusedW, Shape: append([]int{}, fusedW.Shape...)})
		// rewire: this node now multiplies the inner node's left operand by
		// the fused weight; the old inner matmul becomes dead
		g.Nodes[id].Inputs = []int{left, len(g.Nodes) - 1}
		count++
	}
	return count
}

func (g *Graph) useCounts() []int {
	uses := make([]int, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			uses[in]++
		}
	}
	for _, out := range g.Outputs {
		uses[out]++
	}
	return uses
}

// compact drops nodes unreachable from the outputs and renumbers the arena.
// Because fusion appends constants out of topological position, compaction
// also restores index order.
func (g *Graph) compact() *Graph {
	live := bitset.New(uint(len(g.Nodes)))
	var mark func(int)
	mark = func(id int) {
		if live.Test(uint(id)) {
			return
		}
		live.Set(uint(id))
		for _, in := range g.Nodes[id].Inputs {
			mark(in)
		}
	}
	for _, out := range g.Outputs {
		mark(out)
	}
	// inputs stay even when dead: they are part of the declared interface
	for _, in := range g.Inputs {
		live.Set(uint(in))
	}

	order := topoOrder(g, live)
	remap := make([]int, len(g.Nodes))
	for i := range remap {
		remap[i] = -1
	}
	out := &Graph{}
	for _, id := range order {
		n := g.Nodes[id]
		cp := n
		cp.Inputs = make([]int, len(n.Inputs))
		for i, in := range n.Inputs {
			cp.Inputs[i] = remap[in]
		}
		out.Nodes = append(out.Nodes, cp)
		remap[id] = len(out.Nodes) - 1
	}
	for _, in := range g.Inputs {
		out.Inputs = append(out.Inputs, remap[in])
	}
	for _, o := range g.Outputs {
		out.Outputs = append(out.Outputs, remap[o])
	}
	return out
}

// topoOrder returns live node ids in dependency order, stable with respect
// to the original arena order.
func topoOrder(g *Graph, live *bitset.BitSet) []int {
	placed := bitset.New(uint(len(g.Nodes)))
	var order []int
	var place func(int)
	place = func(id int) {
		if placed.Test(uint(id)) {
			return
		}
		for _, in := range g.Nodes[id].Inputs {
			place(in)
		}
		placed.Set(uint(id))
		order = append(order, id)
	}
	for id := range g.Nodes {
		if live.Test(uint(id)) {
			place(id)
		}
	}
	return order
}
