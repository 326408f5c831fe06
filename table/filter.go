package table

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrInvalidExpression wraps CEL compile errors for State.Where
var ErrInvalidExpression = errors.New("invalid filter expression")

// maxCachedPrograms bounds the compiled-program cache; it is cleared when full
const maxCachedPrograms = 128

// costLimit stops runaway expressions
const costLimit = 1000000

var celIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// expressionFilter compiles Where expressions against the table's columns.
// Each column with an identifier-safe id is a variable; every column is also
// reachable as row["id"].
type expressionFilter struct {
	env      *cel.Env
	columns  []string
	programs map[string]cel.Program // expression -> compiled program
	mu       sync.RWMutex
}

func newExpressionFilter(columns []string) (*expressionFilter, error) {
	opts := []cel.EnvOption{
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
	}
	var vars []string
	for _, col := range columns {
		if col == "row" || !celIdentifier.MatchString(col) {
			continue
		}
		opts = append(opts, cel.Variable(col, cel.DynType))
		vars = append(vars, col)
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &expressionFilter{
		env:      env,
		columns:  vars,
		programs: make(map[string]cel.Program),
	}, nil
}

// compile returns the cached program for expression, compiling it on first use
func (f *expressionFilter) compile(expression string) (*compiledFilter, error) {
	f.mu.RLock()
	prog, ok := f.programs[expression]
	f.mu.RUnlock()
	if ok {
		return &compiledFilter{prog: prog, columns: f.columns}, nil
	}

	ast, issues := f.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must be boolean, got %s", ErrInvalidExpression, out)
	}

	prog, err := f.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}

	f.mu.Lock()
	if len(f.programs) >= maxCachedPrograms {
		clear(f.programs)
	}
	f.programs[expression] = prog
	f.mu.Unlock()

	return &compiledFilter{prog: prog, columns: f.columns}, nil
}

type compiledFilter struct {
	prog    cel.Program
	columns []string
}

// match evaluates the program for one row. Evaluation errors and
// non-boolean results exclude the row.
func (c *compiledFilter) match(row Row) bool {
	native := make(map[string]any, len(row))
	for id, v := range row {
		native[id] = v.Native()
	}

	activation := make(map[string]any, len(c.columns)+1)
	activation["row"] = native
	for _, col := range c.columns {
		activation[col] = native[col]
	}

	out, _, err := c.prog.Eval(activation)
	if err != nil {
		return false
	}

	matched, ok := out.Value().(bool)
	return ok && matched
}
