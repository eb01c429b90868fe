package graph

import "fmt"

// ErrorKind classifies structural graph failures.
type ErrorKind uint8

const (
	ErrUnsupportedOp ErrorKind = iota
	ErrShapeMismatch
	ErrCycle
	ErrMissingNode
	ErrNoOutputs
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedOp:
		return "unsupported operator"
	case ErrShapeMismatch:
		return "shape mismatch"
	case ErrCycle:
		return "cyclic graph"
	case ErrMissingNode:
		return "missing node"
	case ErrNoOutputs:
		return "no outputs"
	}
	return "graph error"
}

// Error is a structural problem in an input graph. It is fatal and surfaced
// to the caller; no pass retries on it.
type Error struct {
	Kind ErrorKind
	Node int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph: %s at node %d: %s", e.Kind, e.Node, e.Msg)
}
