package compiler

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/lookup"
	"github.com/tensorzk/tensorzk/tensor"
)

// Compile lowers a quantized graph into a constraint system. The graph must
// already be normalized and quantized; Compile visits nodes in arena order
// (a topological order by construction) and produces the reusable Circuit.
// Compilation is all-or-nothing: any failure leaves no partial artifact.
func Compile(g *graph.Graph, cfg Config) (*Circuit, error) {
	if err := cfg.Quant.Validate(); err != nil {
		return nil, err
	}
	layout, err := buildLayout(g)
	if err != nil {
		return nil, err
	}

	mgr := lookup.NewManager(cfg.LookupCellBudget)
	gc := &graphCircuit{
		In:     make([]frontend.Variable, layout.NbInputWires()),
		Out:    make([]frontend.Variable, layout.NbOutputWires()),
		g:      g,
		params: cfg.Quant,
		layout: layout,
		mgr:    mgr,
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, gc)
	if err != nil {
		return nil, fmt.Errorf("compile: lowering failed: %w", err)
	}

	nbConstraints := ccs.GetNbConstraints()
	if cfg.RowBudget > 0 && nbConstraints > cfg.RowBudget {
		return nil, &Error{Budget: "rows", Used: nbConstraints, Limit: cfg.RowBudget}
	}

	fp, err := fingerprint(g, cfg.Quant, layout)
	if err != nil {
		return nil, err
	}

	c := &Circuit{
		CS:          ccs,
		Layout:      *layout,
		Params:      cfg.Quant,
		Graph:       g,
		Fingerprint: fp,
		stats: Stats{
			NbNodes:       len(g.Nodes),
			NbConstraints: nbConstraints,
			NbTables:      mgr.Len(),
			NbLookups:     gc.nbLookups,
		},
	}

	log := logger.Logger()
	log.Info().
		Int("nbNodes", c.stats.NbNodes).
		Int("nbConstraints", c.stats.NbConstraints).
		Int("nbTables", c.stats.NbTables).
		Int("nbLookups", c.stats.NbLookups).
		Msg("circuit compiled")
	return c, nil
}

// buildLayout assigns contiguous wire ranges to the graph's input and output
// tensors, in declaration order.
func buildLayout(g *graph.Graph) (*Layout, error) {
	l := &Layout{}
	off := 0
	for _, id := range g.Inputs {
		n := g.Nodes[id]
		if n.Op != graph.OpInput {
			return nil, &Error{Msg: fmt.Sprintf("node %d declared as input but is %s", id, n.Op)}
		}
		ln := tensor.NumElems(n.Shape)
		l.Inputs = append(l.Inputs, TensorSpec{
			Node: id, Shape: n.Shape, Scale: n.OutScale, Offset: off, Len: ln,
		})
		off += ln
	}
	off = 0
	for _, id := range g.Outputs {
		n := g.Nodes[id]
		ln := tensor.NumElems(n.Shape)
		l.Outputs = append(l.Outputs, TensorSpec{
			Node: id, Shape: n.Shape, Scale: n.OutScale, Offset: off, Len: ln,
		})
		off += ln
	}
	return l, nil
}

// Assignment builds a schema-compatible witness assignment for this circuit
// from field-mapped input and output wire values. The witness generator is
// the only sane producer of these values.
func (c *Circuit) Assignment(in, out []frontend.Variable) frontend.Circuit {
	return &graphCircuit{In: in, Out: out}
}
