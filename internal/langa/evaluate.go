package langa

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/arc-self/codetrace/internal/trace"
)

// DefaultDeadline bounds a single Evaluate call when EvaluateOptions.Deadline
// is unset, matching the 1000ms default wall-clock budget every Lang-A
// evaluation terminates within.
const DefaultDeadline = 1000 * time.Millisecond

// EvaluateOptions configures a single Evaluate call.
type EvaluateOptions struct {
	// Deadline bounds wall-clock execution. Zero selects DefaultDeadline.
	Deadline time.Duration
}

// Evaluate instruments src and runs it to completion inside a fresh,
// single-use goja.Runtime. Declarations are rewritten, statements are
// probed, console.log calls become Log events, uncaught exceptions or
// timeouts become a terminal Error event, and the final document's Events
// slice is the program's full Step/Log/Error trace in execution order.
func Evaluate(src string, opts EvaluateOptions) (trace.Document, error) {
	instrumented, err := Instrument(src)
	if err != nil {
		return trace.Document{}, err
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())

	sandbox := rt.NewObject()
	run := &run{rt: rt, sandbox: sandbox}
	if err := sandbox.Set(traceFnName, run.trace); err != nil {
		return trace.Document{}, fmt.Errorf("binding __trace: %w", err)
	}

	console := rt.NewObject()
	if err := console.Set("log", run.log); err != nil {
		return trace.Document{}, fmt.Errorf("binding console.log: %w", err)
	}
	if err := sandbox.Set("console", console); err != nil {
		return trace.Document{}, fmt.Errorf("binding console: %w", err)
	}
	if err := rt.Set("sandbox", sandbox); err != nil {
		return trace.Document{}, fmt.Errorf("binding sandbox: %w", err)
	}

	timer := time.AfterFunc(deadline, func() {
		rt.Interrupt("execution timed out")
	})
	defer timer.Stop()

	program, err := goja.Compile("lang-a-source", instrumented, false)
	if err != nil {
		// Instrument already validated src; a failure here means our own
		// rewrite produced invalid syntax, which is a defect, not user error.
		return trace.Document{}, fmt.Errorf("instrumented program failed to compile: %w", err)
	}

	result, runErr := rt.RunProgram(program)
	if runErr != nil {
		run.events = append(run.events, errorEventFor(runErr))
	} else if result != nil {
		// A throw inside the async wrapper rejects its promise instead of
		// surfacing as an error from RunProgram.
		if p, ok := result.Export().(*goja.Promise); ok && p.State() == goja.PromiseStateRejected {
			run.events = append(run.events, trace.Error(p.Result().String()))
		}
	}

	return trace.Document{Events: run.events}, nil
}

// run holds the per-evaluation state closed over by the sandbox's __trace
// and console.log bindings. Lang-A has no call stack to report (spec.md
// §3 scopes CallStack to Lang-B only), so every Step event carries the
// top-level locals snapshot and an empty call stack.
type run struct {
	rt      *goja.Runtime
	sandbox *goja.Object
	events  []trace.Event
}

// trace snapshots sandbox's own enumerable keys. Top-level declarations
// are instrumented into `sandbox.<name> = ...` assignments (see
// instrument.go), so sandbox's own properties ARE the program's top-level
// variables — unlike the runtime's global object, which a `with(sandbox)`
// scope never actually populates (with changes lookup of existing
// properties, not where a declaration's binding is created).
func (r *run) trace(line int) {
	locals := map[string]any{}
	for _, key := range r.sandbox.Keys() {
		if isRuntimeBinding(key) {
			continue
		}
		v := r.sandbox.Get(key)
		if v == nil || goja.IsUndefined(v) {
			continue
		}
		locals[key] = exportValue(v)
	}
	r.events = append(r.events, trace.Step(line, locals, nil))
}

func (r *run) log(args ...goja.Value) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = r.formatValue(a)
	}
	r.events = append(r.events, trace.Log(strings.Join(parts, " ")))
}

// isRuntimeBinding filters the evaluator's own bindings installed directly
// on sandbox (the trace hook and console) out of the locals snapshot —
// everything else on sandbox is a user top-level declaration.
func isRuntimeBinding(key string) bool {
	switch key {
	case traceFnName, "console":
		return true
	}
	return false
}

func exportValue(v goja.Value) any {
	exported := v.Export()
	return exported
}

// formatValue renders a console.log argument. Scalars coerce via their
// normal String(); object/array values are JSON-stringified per spec.md
// §4.1/§4.3 ("object-like values rendered as their JSON serialization"),
// since goja's own String() on an object yields "[object Object]"/"1,2,3"
// rather than a usable representation.
func (r *run) formatValue(v goja.Value) string {
	if goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, ok := v.(*goja.Object); ok {
		if s, err := r.jsonStringify(v); err == nil {
			return s
		}
	}
	return v.String()
}

// jsonStringify invokes the sandboxed runtime's own JSON.stringify so
// non-scalar console.log arguments render the same way the spec's
// reference behavior does.
func (r *run) jsonStringify(v goja.Value) (string, error) {
	jsonNS, ok := r.rt.GlobalObject().Get("JSON").(*goja.Object)
	if !ok {
		return "", fmt.Errorf("JSON global unavailable")
	}
	stringify, ok := goja.AssertFunction(jsonNS.Get("stringify"))
	if !ok {
		return "", fmt.Errorf("JSON.stringify unavailable")
	}
	result, err := stringify(jsonNS, v)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

func errorEventFor(err error) trace.Event {
	if ex, ok := err.(*goja.Exception); ok {
		return trace.Error(ex.Value().String())
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return trace.Error("execution timed out")
	}
	return trace.Error(err.Error())
}
