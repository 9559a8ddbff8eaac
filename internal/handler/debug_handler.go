package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arc-self/codetrace/internal/apierr"
	"github.com/arc-self/codetrace/internal/debugsvc"
	"github.com/arc-self/codetrace/internal/events"
	"github.com/arc-self/codetrace/internal/execsvc"
	"github.com/arc-self/codetrace/internal/langb"
)

// DebugHandler serves POST /debug/start and POST /debug/command. It runs
// the Lang-B tracer directly (a debug session is always precomputed over a
// full Lang-B trace, per spec.md §2's data-flow diagram) rather than going
// through the generic execsvc dispatch, since Lang-A has no debug-session
// concept.
type DebugHandler struct {
	tracer    *langb.Runner
	store     *debugsvc.Store
	publisher *events.Publisher
}

func NewDebugHandler(tracer *langb.Runner, store *debugsvc.Store, publisher *events.Publisher) *DebugHandler {
	return &DebugHandler{tracer: tracer, store: store, publisher: publisher}
}

func (h *DebugHandler) Register(e *echo.Echo) {
	e.POST("/debug/start", h.Start)
	e.POST("/debug/command", h.Command)
}

type debugStartRequest struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Breakpoints []int  `json:"breakpoints"`
}

type debugStartResponse struct {
	SessionID string `json:"sessionId"`
}

// Start godoc
// @Summary      Start a debug session
// @Description  Runs Lang-B source through the tracer and stores the resulting trace as a new debug session.
// @ID           debug-start
// @Tags         debug
// @Accept       json
// @Produce      json
// @Param        request  body      debugStartRequest  true  "Debug start request"
// @Success      200      {object}  debugStartResponse
// @Failure      400      {object}  map[string]string
// @Router       /debug/start [post]
func (h *DebugHandler) Start(c echo.Context) error {
	var req debugStartRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	if req.Code == "" {
		return apierr.BadRequest("code is required")
	}
	if execsvc.Language(req.Language) != execsvc.LangB {
		return apierr.BadRequest("debug sessions are only supported for lang-b")
	}

	doc, err := h.tracer.Run(c.Request().Context(), req.Code, req.Breakpoints)
	if err != nil {
		return apierr.Internal("running lang-b tracer: %v", err)
	}
	if doc.Status == "error" {
		return c.JSON(http.StatusOK, map[string]any{"error": true, "message": doc.Error})
	}

	id, err := h.store.Create(doc.Events, req.Breakpoints)
	if err != nil {
		return apierr.Internal("creating debug session: %v", err)
	}
	h.publisher.DebugSessionStarted(id, len(doc.Events))
	return c.JSON(http.StatusOK, debugStartResponse{SessionID: id})
}

type debugCommandRequest struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
	Line      *int   `json:"line"`
}

// Command godoc
// @Summary      Advance or mutate a debug session
// @Description  Executes step/continue/next/out/setBreakpoint against a session's precomputed trace.
// @ID           debug-command
// @Tags         debug
// @Accept       json
// @Produce      json
// @Param        request  body      debugCommandRequest  true  "Debug command request"
// @Success      200      {object}  map[string]any
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Router       /debug/command [post]
func (h *DebugHandler) Command(c echo.Context) error {
	var req debugCommandRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	if req.SessionID == "" {
		return apierr.BadRequest("sessionId is required")
	}

	sess, ok := h.store.Get(req.SessionID)
	if !ok {
		return apierr.NotFound("unknown session %q", req.SessionID)
	}

	navResult, bpResult, err := debugsvc.Dispatch(sess, req.Command, req.Line)
	if err != nil {
		return err
	}
	if bpResult != nil {
		return c.JSON(http.StatusOK, map[string]any{"breakpoints": bpResult.Breakpoints})
	}
	return c.JSON(http.StatusOK, map[string]any{"event": navResult.Event, "done": navResult.Done})
}
