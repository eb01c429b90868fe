package compiler

import "fmt"

// Error reports a failed compilation: an operator with no lowering, or a
// circuit exceeding a configured resource budget. Compilation is
// all-or-nothing; a budget error names the budget so the caller can raise it
// and recompile.
type Error struct {
	// Budget names the exceeded budget ("rows", "lookup cells"), empty for
	// non-budget failures.
	Budget string
	Used   int
	Limit  int
	Msg    string
}

func (e *Error) Error() string {
	if e.Budget != "" {
		return fmt.Sprintf("compile: %s budget exceeded: %d > %d", e.Budget, e.Used, e.Limit)
	}
	return "compile: " + e.Msg
}
