package logbuffer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// CompileFilter compiles a CEL expression into a Predicate. The expression
// sees these variables:
//
//	nr          int     line number
//	ts_ms       int     event timestamp (ms)
//	level       int     numeric level (Error=1 ... Rowlevel=6)
//	level_code  string  level code, e.g. "Basic"
//	channel     string  channel ID ("" for general lines)
//	subject     string
//	message     string
//	now_ms      int     evaluation time (ms)
//
// An empty expression yields a nil Predicate. Evaluation errors and non-bool
// results count as no match.
func CompileFilter(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("nr", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("level", cel.IntType),
		cel.Variable("level_code", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile filter: expression must be bool, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	return func(line BufferLine) bool {
		ev := line.Event
		out, _, err := prog.Eval(map[string]any{
			"nr":         int64(line.Nr),
			"ts_ms":      ev.TimeStamp,
			"level":      int64(ev.Level),
			"level_code": ev.Level.String(),
			"channel":    ev.ChannelID,
			"subject":    ev.Subject,
			"message":    ev.Message,
			"now_ms":     time.Now().UnixMilli(),
		})
		if err != nil {
			return false
		}
		b, ok := out.Value().(bool)
		return ok && b
	}, nil
}
