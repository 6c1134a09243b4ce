package queuesvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/quarry/internal/queue"
)

// jobFilter wraps a compiled CEL program evaluated against job attributes.
// When disabled, Eval always returns true.
type jobFilter struct {
	prog    cel.Program
	enabled bool
}

func newJobFilter(expr string) (jobFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return jobFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("queue", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("retries", cel.IntType),
		cel.Variable("remaining", cel.IntType),
		cel.Variable("worker", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("text", cel.StringType),
		cel.Variable("size", cel.IntType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return jobFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return jobFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return jobFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return jobFilter{}, err
	}
	return jobFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a job. When disabled,
// returns true.
func (f jobFilter) Eval(j *queue.Job) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(j.Data, &jsonObj)
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":        j.ID,
		"queue":     j.Queue,
		"state":     string(j.State),
		"priority":  j.Priority,
		"tags":      tags,
		"retries":   j.Retries,
		"remaining": j.Remaining,
		"worker":    j.Worker,
		"json":      jsonObj,
		"text":      string(j.Data),
		"size":      int64(len(j.Data)),
		"now_ms":    time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
