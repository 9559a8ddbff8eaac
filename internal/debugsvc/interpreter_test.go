package debugsvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/codetrace/internal/trace"
)

func stepEvent(line int, callStack []string) trace.Event {
	return trace.Step(line, nil, callStack)
}

func TestDispatch_Step_AdvancesPointerByOneUntilTermination(t *testing.T) {
	store := NewStore()
	id, err := store.Create([]trace.Event{stepEvent(1, nil), stepEvent(2, nil), stepEvent(3, nil)}, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	r1, _, err := Dispatch(sess, CmdStep, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Event.LineNumber())
	assert.False(t, r1.Done)

	r2, _, _ := Dispatch(sess, CmdStep, nil)
	assert.Equal(t, 2, r2.Event.LineNumber())
	assert.False(t, r2.Done)

	r3, _, _ := Dispatch(sess, CmdStep, nil)
	assert.Equal(t, 3, r3.Event.LineNumber())
	assert.False(t, r3.Done)

	r4, _, _ := Dispatch(sess, CmdStep, nil)
	assert.Equal(t, 3, r4.Event.LineNumber())
	assert.True(t, r4.Done)
}

func TestDispatch_Step_EmptyEventsReturnsNilDone(t *testing.T) {
	store := NewStore()
	id, err := store.Create(nil, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	r, _, err := Dispatch(sess, CmdStep, nil)
	require.NoError(t, err)
	assert.Nil(t, r.Event)
	assert.True(t, r.Done)
}

func TestDispatch_Continue_HonorsBreakpoints(t *testing.T) {
	store := NewStore()
	events := []trace.Event{
		stepEvent(1, nil), stepEvent(2, nil), stepEvent(3, nil),
		stepEvent(4, nil), stepEvent(5, nil), stepEvent(6, nil),
	}
	id, err := store.Create(events, []int{5})
	require.NoError(t, err)
	sess, _ := store.Get(id)

	result, _, err := Dispatch(sess, CmdContinue, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Event)
	assert.Equal(t, 5, result.Event.LineNumber())
	assert.False(t, result.Done)
}

func TestDispatch_Continue_NoBreakpointsFastForwardsToLastEvent(t *testing.T) {
	store := NewStore()
	events := []trace.Event{stepEvent(1, nil), stepEvent(2, nil), stepEvent(3, nil)}
	id, err := store.Create(events, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	result, _, err := Dispatch(sess, CmdContinue, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Event.LineNumber())
	assert.True(t, result.Done)
}

func TestDispatch_Next_SkipsDeeperFrames(t *testing.T) {
	store := NewStore()
	events := []trace.Event{
		stepEvent(1, []string{"main"}),
		stepEvent(2, []string{"main", "helper"}),
		stepEvent(3, []string{"main", "helper"}),
		stepEvent(4, []string{"main", "helper"}),
		stepEvent(5, []string{"main"}),
	}
	id, err := store.Create(events, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	result, _, err := Dispatch(sess, CmdNext, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Event)
	assert.Equal(t, 5, result.Event.LineNumber())
}

func TestDispatch_Next_StopsAtImmediateSameDepthNeighbor(t *testing.T) {
	// A neighbor at the same depth as the current pointer is itself a
	// valid landing spot — next does not require a prior descent. The
	// session must first be positioned on the depth-1 frame (index 0) via
	// step, since a fresh session's pointer (-1) carries an implicit
	// currentDepth of 0, which every real event here is deeper than.
	store := NewStore()
	events := []trace.Event{
		stepEvent(1, []string{"main"}),
		stepEvent(2, []string{"main"}),
		stepEvent(3, []string{"main", "helper"}),
	}
	id, err := store.Create(events, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	_, _, err = Dispatch(sess, CmdStep, nil)
	require.NoError(t, err)

	result, _, err := Dispatch(sess, CmdNext, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Event.LineNumber())
}

func TestDispatch_Out_LandsOnFirstStrictlyShallowerFrame(t *testing.T) {
	store := NewStore()
	events := []trace.Event{
		stepEvent(1, []string{"main", "helper"}),
		stepEvent(2, []string{"main", "helper"}),
		stepEvent(3, []string{"main"}),
	}
	id, err := store.Create(events, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	result, _, err := Dispatch(sess, CmdOut, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Event.LineNumber())
}

func TestDispatch_SetBreakpoint_IsIdempotent(t *testing.T) {
	store := NewStore()
	id, err := store.Create([]trace.Event{stepEvent(1, nil)}, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	line := 7
	_, r1, err := Dispatch(sess, CmdSetBreakpoint, &line)
	require.NoError(t, err)
	_, r2, err := Dispatch(sess, CmdSetBreakpoint, &line)
	require.NoError(t, err)

	assert.ElementsMatch(t, r1.Breakpoints, r2.Breakpoints)
	assert.Len(t, r2.Breakpoints, 1)
}

func TestDispatch_UnknownCommand_IsBadRequest(t *testing.T) {
	store := NewStore()
	id, err := store.Create([]trace.Event{stepEvent(1, nil)}, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	_, _, err = Dispatch(sess, "rewind", nil)
	require.Error(t, err)
}

func TestDispatch_PointerNeverMovesBackward(t *testing.T) {
	store := NewStore()
	events := []trace.Event{stepEvent(1, nil), stepEvent(2, nil), stepEvent(3, nil)}
	id, err := store.Create(events, nil)
	require.NoError(t, err)
	sess, _ := store.Get(id)

	r1, _, _ := Dispatch(sess, CmdStep, nil)
	r2, _, _ := Dispatch(sess, CmdStep, nil)
	assert.Less(t, r1.Event.LineNumber(), r2.Event.LineNumber())
}
