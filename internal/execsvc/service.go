// Package execsvc implements the execution endpoint's dispatch logic (C5):
// given a language and source body, it runs the right backend — the
// in-process Lang-A evaluator or the out-of-process Lang-B tracer runner —
// and normalizes both into one response shape.
package execsvc

import (
	"context"

	"go.uber.org/zap"

	"github.com/arc-self/codetrace/internal/apierr"
	"github.com/arc-self/codetrace/internal/events"
	"github.com/arc-self/codetrace/internal/historylog"
	"github.com/arc-self/codetrace/internal/langa"
	"github.com/arc-self/codetrace/internal/langb"
	"github.com/arc-self/codetrace/internal/trace"
)

// Language identifies which backend an execution request targets.
type Language string

const (
	LangA Language = "lang-a"
	LangB Language = "lang-b"
)

// Request is the execution endpoint's input, per spec.md §4.5.
type Request struct {
	Language    Language
	Code        string
	Breakpoints []int
}

// Result is the uniform shape both backends are normalized into. Lang-A
// never populates Output; Lang-B never populates the top-level Error
// message distinctly from Document.Error (both carry the same string).
type Result struct {
	Document trace.Document
	Output   string
	IsError  bool
	Message  string
}

// Service dispatches execution requests to the Lang-A evaluator or the
// Lang-B tracer runner.
type Service struct {
	Tracer     *langb.Runner
	Logger     *zap.Logger
	Deadline   langa.EvaluateOptions
	Publisher  *events.Publisher
	HistoryLog *historylog.Store
}

// Execute runs req.Code under the backend named by req.Language. It
// returns an *apierr.Error only for requests that never reach a backend at
// all (missing code, unsupported language); once a backend actually runs,
// every outcome — including a user program's runtime error or a tracer
// timeout — is folded into Result, never into an error return, per
// spec.md §4.5's "always HTTP 200 once attempted" rule.
func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Code == "" {
		return Result{}, apierr.BadRequest("code is required")
	}

	var result Result
	var err error
	switch req.Language {
	case LangA:
		result, err = s.executeLangA(req.Code)
	case LangB:
		result, err = s.executeLangB(ctx, req.Code, req.Breakpoints)
	default:
		return Result{}, apierr.BadRequest("unsupported language %q", req.Language)
	}
	if err == nil {
		s.Publisher.ExecutionCompleted(string(req.Language), result.IsError, len(result.Document.Events))
		s.HistoryLog.Record(ctx, string(req.Language), result.IsError, len(result.Document.Events), result.Document)
	}
	return result, err
}

func (s *Service) executeLangA(code string) (Result, error) {
	doc, err := langa.Evaluate(code, s.Deadline)
	if err != nil {
		// Only a parse failure reaches here; it is still a payload-level
		// outcome, not an HTTP error (spec.md §7, InstrumentationError).
		return Result{IsError: true, Message: err.Error()}, nil
	}
	isError := len(doc.Events) > 0 && doc.Events[len(doc.Events)-1].Event == trace.KindError
	result := Result{Document: doc, IsError: isError}
	if isError {
		result.Message = *doc.Events[len(doc.Events)-1].Message
	}
	return result, nil
}

func (s *Service) executeLangB(ctx context.Context, code string, breakpoints []int) (Result, error) {
	doc, err := s.Tracer.Run(ctx, code, breakpoints)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("lang-b tracer invocation failed", zap.Error(err))
		}
		return Result{}, apierr.Internal("running lang-b tracer: %v", err)
	}
	isError := doc.Status == "error"
	return Result{
		Document: doc,
		Output:   doc.Stdout,
		IsError:  isError,
		Message:  doc.Error,
	}, nil
}
