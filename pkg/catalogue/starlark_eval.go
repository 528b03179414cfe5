package catalogue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultScriptTimeout bounds a single cost script evaluation.
const DefaultScriptTimeout = 2 * time.Second

// maxScriptSteps bounds the computation a cost script may perform.
const maxScriptSteps = 1_000_000

// StarlarkEvaluator evaluates scripted cost units.
//
// A script is either a single expression, such as
//
//	size * len(selection.get("variable", [])) / 1e6
//
// or a program that assigns the global cost.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultScriptTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// EvaluateCost runs script with vars predeclared and returns its numeric result.
func (se *StarlarkEvaluator) EvaluateCost(ctx context.Context, script string, vars map[string]interface{}) (float64, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	predeclared, err := predeclare(vars)
	if err != nil {
		return 0, err
	}

	thread := &starlark.Thread{
		Name:  "cost",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	thread.SetMaxExecutionSteps(maxScriptSteps)

	type outcome struct {
		value float64
		err   error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		v, err := evaluateSync(thread, script, predeclared)
		resultCh <- outcome{v, err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		<-resultCh
		return 0, fmt.Errorf("cost script: %w", evalCtx.Err())
	case res := <-resultCh:
		return res.value, res.err
	}
}

// evaluateSync evaluates the script as an expression first, then as a program.
func evaluateSync(thread *starlark.Thread, script string, predeclared starlark.StringDict) (float64, error) {
	globals, err := starlark.ExecFile(thread, "cost.star", "cost = (\n"+script+"\n)\n", predeclared)
	if err != nil {
		var syntaxErr syntax.Error
		if !errors.As(err, &syntaxErr) {
			return 0, fmt.Errorf("cost script failed: %w", err)
		}
		globals, err = starlark.ExecFile(thread, "cost.star", script, predeclared)
		if err != nil {
			return 0, fmt.Errorf("cost script failed: %w", err)
		}
	}

	cost, ok := globals["cost"]
	if !ok {
		return 0, fmt.Errorf("cost script does not assign cost")
	}
	return toFloat(cost)
}

func toFloat(v starlark.Value) (float64, error) {
	switch val := v.(type) {
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return float64(i), nil
		}
		return math.Inf(1), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cost script returned %s, want a number", v.Type())
	}
}

func predeclare(vars map[string]interface{}) (starlark.StringDict, error) {
	predeclared := make(starlark.StringDict, len(vars))
	for key, val := range vars {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}
	return predeclared, nil
}

// toStarlarkValue converts a Go value to a Starlark value. Dicts are frozen
// so scripts cannot mutate the request.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		l := starlark.NewList(list)
		l.Freeze()
		return l, nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		l := starlark.NewList(list)
		l.Freeze()
		return l, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		dict.Freeze()
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
