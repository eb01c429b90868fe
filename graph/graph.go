package graph

import (
	"fmt"

	"github.com/tensorzk/tensorzk/tensor"
)

// Node is one operation in the arena. Inputs are indices of earlier nodes;
// the arena is append-only, so index order is a topological order and the
// graph is acyclic by construction once validated.
type Node struct {
	Op     OpKind
	Inputs []int
	Attrs  Attrs

	// Shape of the node's output, filled by shape inference.
	Shape []int
	// OutScale is the fixed-point scale of the output, filled by the
	// quantizer.
	OutScale int

	// Value holds the raw constant of an OpConst node.
	Value *tensor.Tensor[float64]
	// QValue holds the quantized constant, filled by the quantizer.
	QValue *tensor.Tensor[int64]
}

// Graph is an arena of nodes. Inputs and Outputs are node indices.
type Graph struct {
	Nodes   []Node
	Inputs  []int
	Outputs []int
}

// New returns an empty graph.
func New() *Graph { return &Graph{} }

// AddInput appends an input placeholder node and returns its index.
func (g *Graph) AddInput(shape ...int) int {
	g.Nodes = append(g.Nodes, Node{Op: OpInput, Shape: append([]int{}, shape...)})
	id := len(g.Nodes) - 1
	g.Inputs = append(g.Inputs, id)
	return id
}

// AddConst appends a constant node holding a raw float tensor.
func (g *Graph) AddConst(t *tensor.Tensor[float64]) int {
	g.Nodes = append(g.Nodes, Node{Op: OpConst, Value: t, Shape: append([]int{}, t.Shape...)})
	return len(g.Nodes) - 1
}

// AddNode appends an operation node and returns its index.
func (g *Graph) AddNode(op OpKind, inputs []int, attrs Attrs) int {
	g.Nodes = append(g.Nodes, Node{Op: op, Inputs: append([]int{}, inputs...), Attrs: attrs})
	return len(g.Nodes) - 1
}

// MarkOutput declares a node as a graph output.
func (g *Graph) MarkOutput(id int) {
	g.Outputs = append(g.Outputs, id)
}

// Clone returns a deep copy of the graph structure. Tensors are shared;
// they are immutable once attached to a node.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes:   make([]Node, len(g.Nodes)),
		Inputs:  append([]int{}, g.Inputs...),
		Outputs: append([]int{}, g.Outputs...),
	}
	for i, n := range g.Nodes {
		cp := n
		cp.Inputs = append([]int{}, n.Inputs...)
		cp.Shape = append([]int{}, n.Shape...)
		if n.Attrs.TargetShape != nil {
			cp.Attrs.TargetShape = append([]int{}, n.Attrs.TargetShape...)
		}
		out.Nodes[i] = cp
	}
	return out
}

// Validate checks structural well-formedness: every referenced node exists,
// every edge points strictly backwards (acyclicity), operator kinds are
// known, and outputs are declared.
func (g *Graph) Validate() error {
	if len(g.Outputs) == 0 {
		return &Error{Kind: ErrNoOutputs, Msg: "graph declares no outputs"}
	}
	for id, n := range g.Nodes {
		if n.Op >= opKindEnd {
			return &Error{Kind: ErrUnsupportedOp, Node: id, Msg: fmt.Sprintf("unknown operator %d", n.Op)}
		}
		for _, in := range n.Inputs {
			if in < 0 || in >= len(g.Nodes) {
				return &Error{Kind: ErrMissingNode, Node: id, Msg: fmt.Sprintf("input %d does not exist", in)}
			}
			if in >= id {
				return &Error{Kind: ErrCycle, Node: id, Msg: fmt.Sprintf("input %d is not earlier than node %d", in, id)}
			}
		}
	}
	for _, out := range g.Outputs {
		if out < 0 || out >= len(g.Nodes) {
			return &Error{Kind: ErrMissingNode, Node: out, Msg: "output references missing node"}
		}
	}
	return nil
}
