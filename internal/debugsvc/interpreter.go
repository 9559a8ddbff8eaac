package debugsvc

import (
	"time"

	"github.com/arc-self/codetrace/internal/apierr"
	"github.com/arc-self/codetrace/internal/trace"
)

// Command names accepted by Dispatch.
const (
	CmdStep          = "step"
	CmdContinue      = "continue"
	CmdNext          = "next"
	CmdOut           = "out"
	CmdSetBreakpoint = "setBreakpoint"
)

// CommandResult is the navigation-command response shape from spec.md §6:
// `{event, done}`. Event is nil only for a session started with zero
// events; once the trace is exhausted it is the last event, with Done set.
type CommandResult struct {
	Event *trace.Event
	Done  bool
}

// BreakpointResult is setBreakpoint's response shape: `{breakpoints}`.
type BreakpointResult struct {
	Breakpoints []int
}

// Dispatch runs one command against sess, serialized behind the session's
// own mutex so two concurrent commands against the same session never
// interleave (spec.md §5). It returns exactly one of (*CommandResult, nil)
// or (nil, *BreakpointResult); an unrecognized command is a boundary
// BadRequest, per spec.md §4.7's "any other command → HTTP 400".
func Dispatch(sess *Session, command string, line *int) (*CommandResult, *BreakpointResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastTouchedAt = time.Now()

	switch command {
	case CmdStep:
		return sess.step(), nil, nil
	case CmdContinue:
		return sess.continueTo(), nil, nil
	case CmdNext:
		return sess.next(), nil, nil
	case CmdOut:
		return sess.out(), nil, nil
	case CmdSetBreakpoint:
		return nil, sess.setBreakpoint(line), nil
	default:
		return nil, nil, apierr.BadRequest("unknown debug command %q", command)
	}
}

func (s *Session) step() *CommandResult {
	if len(s.events) == 0 {
		return &CommandResult{Event: nil, Done: true}
	}
	next := s.pointer + 1
	if next >= len(s.events) {
		s.pointer = len(s.events) - 1
		ev := s.events[s.pointer]
		return &CommandResult{Event: &ev, Done: true}
	}
	s.pointer = next
	ev := s.events[s.pointer]
	return &CommandResult{Event: &ev, Done: false}
}

func (s *Session) continueTo() *CommandResult {
	return s.scanForward(func(ev trace.Event) bool {
		_, isBreakpoint := s.breakpoints[ev.LineNumber()]
		return isBreakpoint
	})
}

func (s *Session) next() *CommandResult {
	depth := s.currentDepth()
	return s.scanForward(func(ev trace.Event) bool {
		return ev.CallStackDepth() <= depth
	})
}

func (s *Session) out() *CommandResult {
	depth := s.currentDepth()
	return s.scanForward(func(ev trace.Event) bool {
		return ev.CallStackDepth() < depth
	})
}

// currentDepth is the call stack length at the current pointer, treating
// pointer=-1 (before start) and a missing callStack both as depth 0.
func (s *Session) currentDepth() int {
	if s.pointer < 0 || s.pointer >= len(s.events) {
		return 0
	}
	return s.events[s.pointer].CallStackDepth()
}

// scanForward advances the pointer by one and then continues scanning
// while stop returns false, landing on the first event where stop is true.
// Reaching the end without a match clamps to the last index and signals
// done=true, matching continue/next/out's shared tie-break rules:
// pointer=-1 scans from index 0, and the scan never re-yields the current
// event.
func (s *Session) scanForward(stop func(trace.Event) bool) *CommandResult {
	if len(s.events) == 0 {
		return &CommandResult{Event: nil, Done: true}
	}
	idx := s.pointer + 1
	if idx < 0 {
		idx = 0
	}
	last := len(s.events) - 1
	for idx < last {
		if stop(s.events[idx]) {
			s.pointer = idx
			ev := s.events[idx]
			return &CommandResult{Event: &ev, Done: false}
		}
		idx++
	}
	s.pointer = last
	ev := s.events[last]
	return &CommandResult{Event: &ev, Done: true}
}

func (s *Session) setBreakpoint(line *int) *BreakpointResult {
	if line != nil {
		s.breakpoints[*line] = struct{}{}
	}
	return &BreakpointResult{Breakpoints: breakpointSlice(s.breakpoints)}
}

func breakpointSlice(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	return out
}
