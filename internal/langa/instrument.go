// Package langa implements the Lang-A instrumentation pipeline (C2) and the
// in-process sandboxed evaluator (C3) described in spec.md §4.2-§4.3. Lang-A
// is executed by github.com/dop251/goja, the same JS engine used to
// validate that user source parses before the instrumenter touches it.
package langa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// InstrumentationError is returned by Instrument when source cannot be
// parsed. It is a payload-level failure (spec.md §7) — never an HTTP
// boundary error.
type InstrumentationError struct {
	Message string
}

func (e *InstrumentationError) Error() string { return e.Message }

// traceFnName is the identifier injected for per-statement probes. Kept as
// a constant so detection of already-instrumented source (idempotency) and
// the evaluator's binding name always agree.
const traceFnName = "__trace"

// Instrument parses src as Lang-A source, rewrites every top-level
// declaration ("let"/"const"/"var" sitting directly in the program's
// statement list, not nested in any block/function/loop header) into an
// explicit `sandbox.<name> = <init>;` assignment, rewrites the keyword of
// every nested `let`/`const` declaration to `var`, injects a `__trace(line)`
// call before each statement, and wraps the result in an async IIFE whose
// body is a `with(sandbox) { ... }` scope, per spec.md §4.2 and §9's
// two-pass redesign.
//
// The declaration rewrite is a plain assignment rather than a keyword
// change: `with(sandbox)` only changes how an *existing* sandbox property
// is looked up, it does not make a `var`/`let`/`const` declaration's own
// binding land on sandbox (declarations always hoist to the wrapper arrow
// function's scope, with or without `with`). Writing `sandbox.x = ...`
// directly is what actually reifies the binding onto the object the trace
// hook snapshots.
//
// Instrument is idempotent: re-instrumenting its own output does not stack
// additional __trace calls, and re-instrumenting already-rewritten
// `sandbox.x = ...` assignments is a no-op (there is no declaration
// keyword left to rewrite).
func Instrument(src string) (string, error) {
	if _, err := goja.Compile("lang-a-source", src, false); err != nil {
		return "", &InstrumentationError{Message: err.Error()}
	}

	inner := src
	if body, ok := unwrapPreviousInstrumentation(src); ok {
		inner = body
	}

	processed, err := instrumentBody(inner)
	if err != nil {
		return "", &InstrumentationError{Message: err.Error()}
	}

	var b strings.Builder
	b.WriteString("(async () => {\n  with (sandbox) {\n")
	b.WriteString(processed)
	b.WriteString("\n  }\n})()")
	return b.String(), nil
}

// wrapperPrefix/wrapperSuffix are the token shapes of Instrument's own
// output, used to detect and strip a previous instrumentation pass.
var wrapperPrefix = []string{"(", "async", "(", ")", "=>", "{", "with", "(", "sandbox", ")", "{"}
var wrapperSuffix = []string{"}", "}", ")", "(", ")"}

func unwrapPreviousInstrumentation(src string) (string, bool) {
	toks, err := tokenize(src)
	if err != nil {
		return "", false
	}
	sig := significant(toks)
	// drop the trailing EOF marker
	if len(sig) > 0 && sig[len(sig)-1].kind == tokEOF {
		sig = sig[:len(sig)-1]
	}
	if len(sig) < len(wrapperPrefix)+len(wrapperSuffix) {
		return "", false
	}
	for i, want := range wrapperPrefix {
		if sig[i].text != want {
			return "", false
		}
	}
	tail := sig[len(sig)-len(wrapperSuffix):]
	for i, want := range wrapperSuffix {
		if tail[i].text != want {
			return "", false
		}
	}
	bodyStart := sig[len(wrapperPrefix)].start
	bodyEnd := sig[len(sig)-len(wrapperSuffix)].start
	if bodyEnd < bodyStart {
		return "", false
	}
	return src[bodyStart:bodyEnd], true
}

type probe struct {
	offset int
	line   int
}

type edit struct {
	offset    int
	isInsert  bool
	insertTxt string
	end       int
	replTxt   string
}

// instrumentBody runs the declaration rewrite + per-statement probe
// injection over a (non-wrapped) program body and returns the rewritten
// text, unchanged outside of the two transformations.
func instrumentBody(src string) (string, error) {
	toks, err := tokenize(src)
	if err != nil {
		return "", err
	}
	sig := significant(toks)
	if len(sig) > 0 && sig[len(sig)-1].kind == tokEOF {
		sig = sig[:len(sig)-1]
	}

	var probes []probe
	w := &walker{sig: sig}
	if err := w.walkStatements(0, len(sig), &probes); err != nil {
		return "", err
	}

	var edits []edit
	for _, p := range probes {
		edits = append(edits, edit{offset: p.offset, isInsert: true, insertTxt: fmt.Sprintf("%s(%d); ", traceFnName, p.line)})
	}
	edits = append(edits, topLevelDeclarationEdits(sig, src)...)

	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].offset != edits[j].offset {
			return edits[i].offset < edits[j].offset
		}
		return edits[i].isInsert && !edits[j].isInsert
	})

	var b strings.Builder
	cursor := 0
	for _, e := range edits {
		if e.isInsert {
			b.WriteString(src[cursor:e.offset])
			b.WriteString(e.insertTxt)
			// insertion consumes no source bytes; cursor only catches up
			// to the insertion point.
			cursor = e.offset
		} else {
			b.WriteString(src[cursor:e.offset])
			b.WriteString(e.replTxt)
			cursor = e.end
		}
	}
	b.WriteString(src[cursor:])
	return b.String(), nil
}

// declarator is one name/initializer pair out of a declaration statement,
// e.g. `y = 2` out of `let x = 1, y = 2;`.
type declarator struct {
	name string
	init string // source text of the initializer expression, "" if absent
}

// topLevelDeclarationEdits finds every `let`/`const`/`var` declaration
// statement sitting directly in the program's top-level statement list —
// not nested inside any block, function body, or parenthesized header —
// and rewrites it into one `sandbox.<name> = <init>;` assignment per
// declarator. A nested `let`/`const` (including a for-loop header's
// `(let i = 0; ...)`) only has its keyword rewritten to `var`; declarations
// inside a top-level declaration's initializer are copied unchanged. A destructuring declarator (a `{` or `[` pattern in name
// position) falls back to a plain `var` keyword rewrite for the whole
// statement: splitting a destructuring pattern across individual sandbox
// assignments is out of scope, so those names stay local to the wrapper
// IIFE instead of appearing in the locals snapshot.
func topLevelDeclarationEdits(sig []token, src string) []edit {
	var edits []edit
	braceDepth, parenDepth := 0, 0
	bodyEnd := len(src)
	if len(sig) > 0 {
		bodyEnd = sig[len(sig)-1].end
	}

	for i := 0; i < len(sig); i++ {
		t := sig[i]
		if t.kind == tokPunct {
			switch t.text {
			case "{":
				braceDepth++
			case "}":
				braceDepth--
			case "(":
				parenDepth++
			case ")":
				parenDepth--
			}
		}
		if t.kind != tokKeyword || (t.text != "let" && t.text != "const" && t.text != "var") {
			continue
		}
		if braceDepth != 0 || parenDepth != 0 {
			if t.text != "var" {
				edits = append(edits, edit{offset: t.start, end: t.end, replTxt: "var"})
			}
			continue
		}

		declarators, end, ok := scanDeclarators(sig, i+1, src, bodyEnd)
		if !ok {
			edits = append(edits, edit{offset: t.start, end: t.end, replTxt: "var"})
			continue
		}

		var b strings.Builder
		for _, d := range declarators {
			init := d.init
			if init == "" {
				init = "undefined"
			}
			fmt.Fprintf(&b, "sandbox.%s = %s;", d.name, init)
		}
		edits = append(edits, edit{offset: t.start, end: end, replTxt: b.String()})
		// The replaced range is copied verbatim into the initializers, so
		// nothing inside it is edited again.
		for i+1 < len(sig) && sig[i+1].start < end {
			i++
		}
	}
	return edits
}

// scanDeclarators parses the declarator list of a declaration statement
// starting just after its keyword, returning the byte offset just past the
// statement (consuming a trailing top-level ";" if present; falling back
// to bodyEnd for a final statement with no trailing semicolon). ok is
// false if any declarator's name position is a destructuring pattern.
func scanDeclarators(sig []token, idx int, src string, bodyEnd int) ([]declarator, int, bool) {
	var declarators []declarator
	declStart := idx
	ok := true

	flush := func(upto int) {
		if upto <= declStart || !ok {
			return
		}
		if sig[declStart].kind == tokPunct && (sig[declStart].text == "{" || sig[declStart].text == "[") {
			ok = false
			return
		}
		eq, depth := -1, 0
		for j := declStart; j < upto; j++ {
			tk := sig[j]
			if tk.kind != tokPunct {
				continue
			}
			switch tk.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case "=":
				if depth == 0 && eq == -1 {
					eq = j
				}
			}
		}
		if eq == -1 {
			name := strings.TrimSpace(src[sig[declStart].start:sig[upto-1].end])
			declarators = append(declarators, declarator{name: name})
			return
		}
		name := strings.TrimSpace(src[sig[declStart].start:sig[eq].start])
		init := strings.TrimSpace(src[sig[eq].end:sig[upto-1].end])
		declarators = append(declarators, declarator{name: name, init: init})
	}

	depth := 0
	i := idx
	for i < len(sig) {
		t := sig[i]
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					flush(i)
					return declarators, t.start, ok
				}
				depth--
			case ",":
				if depth == 0 {
					flush(i)
					declStart = i + 1
				}
			case ";":
				if depth == 0 {
					flush(i)
					return declarators, t.end, ok
				}
			}
		}
		i++
	}
	flush(len(sig))
	return declarators, bodyEnd, ok
}

// walker performs the recursive-descent statement segmentation described in
// SPEC_FULL.md §4.2: it finds every statement boundary (at any nesting
// depth reachable through blocks, if/else, loops, try/catch/finally,
// switch cases, function declarations, and class method bodies) and
// records one probe per statement, skipping statements that are themselves
// already `__trace(...)` calls.
type walker struct {
	sig []token
}

func (w *walker) walkStatements(lo, hi int, probes *[]probe) error {
	idx := lo
	for idx < hi {
		t := w.sig[idx]
		if t.kind == tokPunct && t.text == ";" {
			idx++
			continue
		}
		w.maybeProbe(idx, hi, probes)
		next, err := w.consumeOneStatement(idx, hi, probes)
		if err != nil {
			return err
		}
		if next <= idx {
			return fmt.Errorf("instrumenter stalled at line %d", t.line)
		}
		idx = next
	}
	return nil
}

func (w *walker) maybeProbe(idx, hi int, probes *[]probe) {
	t := w.sig[idx]
	if w.isTraceCall(idx, hi) {
		return
	}
	// A statement already preceded by a `__trace(N);` probe from an earlier
	// pass is not probed again.
	if idx >= 5 && w.sig[idx-1].text == ";" && w.sig[idx-2].text == ")" &&
		w.sig[idx-3].kind == tokNumber && w.sig[idx-4].text == "(" && w.isTraceCall(idx-5, idx) {
		return
	}
	*probes = append(*probes, probe{offset: t.start, line: t.line})
}

func (w *walker) isTraceCall(idx, hi int) bool {
	t := w.sig[idx]
	return t.kind == tokIdent && t.text == traceFnName &&
		idx+1 < hi && w.sig[idx+1].kind == tokPunct && w.sig[idx+1].text == "("
}

func (w *walker) consumeOneStatement(idx, hi int, probes *[]probe) (int, error) {
	t := w.sig[idx]

	switch {
	case t.kind == tokPunct && t.text == "{":
		close, err := w.matchBrace(idx, hi)
		if err != nil {
			return 0, err
		}
		if err := w.walkStatements(idx+1, close, probes); err != nil {
			return 0, err
		}
		return close + 1, nil

	case t.kind == tokKeyword && t.text == "if":
		idx, err := w.consumeParenHeader(idx + 1, hi)
		if err != nil {
			return 0, err
		}
		idx, err = w.consumeSubStatement(idx, hi, probes)
		if err != nil {
			return 0, err
		}
		for idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "else" {
			idx++
			if idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "if" {
				w.maybeProbe(idx, hi, probes)
				idx, err = w.consumeParenHeader(idx+1, hi)
				if err != nil {
					return 0, err
				}
				idx, err = w.consumeSubStatement(idx, hi, probes)
				if err != nil {
					return 0, err
				}
				continue
			}
			idx, err = w.consumeSubStatement(idx, hi, probes)
			if err != nil {
				return 0, err
			}
		}
		return idx, nil

	case t.kind == tokKeyword && (t.text == "for" || t.text == "while"):
		idx, err := w.consumeParenHeader(idx+1, hi)
		if err != nil {
			return 0, err
		}
		return w.consumeSubStatement(idx, hi, probes)

	case t.kind == tokKeyword && t.text == "do":
		idx, err := w.consumeSubStatement(idx+1, hi, probes)
		if err != nil {
			return 0, err
		}
		if idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "while" {
			idx, err = w.consumeParenHeader(idx+1, hi)
			if err != nil {
				return 0, err
			}
		}
		if idx < hi && w.sig[idx].kind == tokPunct && w.sig[idx].text == ";" {
			idx++
		}
		return idx, nil

	case t.kind == tokKeyword && t.text == "try":
		idx, err := w.consumeSubStatement(idx+1, hi, probes)
		if err != nil {
			return 0, err
		}
		for idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "catch" {
			idx++
			if idx < hi && w.sig[idx].kind == tokPunct && w.sig[idx].text == "(" {
				idx, err = w.consumeParenHeader(idx, hi)
				if err != nil {
					return 0, err
				}
			}
			idx, err = w.consumeSubStatement(idx, hi, probes)
			if err != nil {
				return 0, err
			}
		}
		if idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "finally" {
			idx++
			idx, err = w.consumeSubStatement(idx, hi, probes)
			if err != nil {
				return 0, err
			}
		}
		return idx, nil

	case t.kind == tokKeyword && t.text == "switch":
		idx, err := w.consumeParenHeader(idx+1, hi)
		if err != nil {
			return 0, err
		}
		if idx >= hi || w.sig[idx].text != "{" {
			return idx, nil
		}
		close, err := w.matchBrace(idx, hi)
		if err != nil {
			return 0, err
		}
		inner := idx + 1
		for inner < close {
			switch {
			case w.sig[inner].kind == tokKeyword && w.sig[inner].text == "case":
				inner++
				for inner < close && !(w.sig[inner].kind == tokPunct && w.sig[inner].text == ":") {
					inner++
				}
				if inner < close {
					inner++
				}
			case w.sig[inner].kind == tokKeyword && w.sig[inner].text == "default":
				inner++
				if inner < close && w.sig[inner].kind == tokPunct && w.sig[inner].text == ":" {
					inner++
				}
			default:
				w.maybeProbe(inner, close, probes)
				next, err := w.consumeOneStatement(inner, close, probes)
				if err != nil {
					return 0, err
				}
				if next <= inner {
					return 0, fmt.Errorf("instrumenter stalled inside switch at line %d", w.sig[inner].line)
				}
				inner = next
			}
		}
		return close + 1, nil

	case t.kind == tokKeyword && t.text == "function":
		idx++
		if idx < hi && w.sig[idx].kind == tokPunct && w.sig[idx].text == "*" {
			idx++
		}
		if idx < hi && w.sig[idx].kind == tokIdent {
			idx++
		}
		idx, err := w.consumeParenHeader(idx, hi)
		if err != nil {
			return 0, err
		}
		return w.consumeSubStatement(idx, hi, probes)

	case t.kind == tokKeyword && t.text == "class":
		idx++
		if idx < hi && w.sig[idx].kind == tokIdent {
			idx++
		}
		if idx < hi && w.sig[idx].kind == tokKeyword && w.sig[idx].text == "extends" {
			idx++
			for idx < hi && !(w.sig[idx].kind == tokPunct && w.sig[idx].text == "{") {
				idx++
			}
		}
		if idx >= hi || w.sig[idx].text != "{" {
			return idx, nil
		}
		close, err := w.matchBrace(idx, hi)
		if err != nil {
			return 0, err
		}
		inner := idx + 1
		for inner < close {
			if w.sig[inner].kind == tokPunct && w.sig[inner].text == "{" {
				mClose, err := w.matchBrace(inner, close)
				if err != nil {
					return 0, err
				}
				if err := w.walkStatements(inner+1, mClose, probes); err != nil {
					return 0, err
				}
				inner = mClose + 1
			} else {
				inner++
			}
		}
		return close + 1, nil

	default:
		return w.consumeSimpleStatement(idx, hi)
	}
}

// consumeSubStatement handles the body of if/for/while/function/etc, which
// is either a `{ ... }` block (its contents are recursed into, each getting
// its own probe) or a single bare statement (which itself needs a probe,
// since consumeSubStatement is not reached through the walkStatements
// sibling loop).
func (w *walker) consumeSubStatement(idx, hi int, probes *[]probe) (int, error) {
	if idx < hi && w.sig[idx].kind == tokPunct && w.sig[idx].text == "{" {
		close, err := w.matchBrace(idx, hi)
		if err != nil {
			return 0, err
		}
		if err := w.walkStatements(idx+1, close, probes); err != nil {
			return 0, err
		}
		return close + 1, nil
	}
	if idx >= hi {
		return idx, nil
	}
	w.maybeProbe(idx, hi, probes)
	return w.consumeOneStatement(idx, hi, probes)
}

// consumeParenHeader assumes sig[idx] is "(" and returns the index just
// past its matching ")".
func (w *walker) consumeParenHeader(idx, hi int) (int, error) {
	if idx >= hi || w.sig[idx].kind != tokPunct || w.sig[idx].text != "(" {
		return idx, nil
	}
	depth := 0
	for idx < hi {
		switch w.sig[idx].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return idx + 1, nil
			}
		}
		idx++
	}
	return 0, fmt.Errorf("unbalanced parentheses at line %d", w.sig[idx-1].line)
}

// matchBrace assumes sig[openIdx] is "{" and returns the index of the
// matching "}".
func (w *walker) matchBrace(openIdx, hi int) (int, error) {
	depth := 0
	for i := openIdx; i < hi; i++ {
		switch w.sig[i].text {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced braces starting at line %d", w.sig[openIdx].line)
}

// consumeSimpleStatement handles declarations, expression statements,
// return/throw/break/continue, import/export: it consumes tokens,
// tracking (), [], {} nesting depth, until a top-level ";" (consumed) or
// until the enclosing range ends (ASI fallback for a final statement with
// no trailing semicolon).
func (w *walker) consumeSimpleStatement(idx, hi int) (int, error) {
	depth := 0
	for idx < hi {
		t := w.sig[idx]
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					return idx, nil
				}
				depth--
			case ";":
				if depth == 0 {
					return idx + 1, nil
				}
			}
		}
		idx++
	}
	return idx, nil
}
