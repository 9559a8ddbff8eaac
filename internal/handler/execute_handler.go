// Package handler wires the HTTP boundary (C5's /execute, C6/C7's
// /debug/start and /debug/command, plus an ambient /healthz) onto execsvc
// and debugsvc, translating between echo.Context and the core's
// payload/error shapes.
package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arc-self/codetrace/internal/apierr"
	"github.com/arc-self/codetrace/internal/execsvc"
)

// Executor is the subset of execsvc.Service the handler depends on,
// narrowed to an interface so tests can substitute a hand-rolled mock in
// the teacher's gomock style instead of a full Service.
type Executor interface {
	Execute(ctx context.Context, req execsvc.Request) (execsvc.Result, error)
}

// ExecuteHandler serves POST /execute.
type ExecuteHandler struct {
	svc Executor
}

func NewExecuteHandler(svc Executor) *ExecuteHandler {
	return &ExecuteHandler{svc: svc}
}

func (h *ExecuteHandler) Register(e *echo.Echo) {
	e.POST("/execute", h.Execute)
}

type executeRequest struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Breakpoints []int  `json:"breakpoints"`
}

type executeResponse struct {
	Events  any     `json:"events"`
	Error   bool    `json:"error"`
	Output  *string `json:"output,omitempty"`
	Message *string `json:"message,omitempty"`
}

// Execute godoc
// @Summary      Execute user source under instrumentation
// @Description  Runs Lang-A in-process or Lang-B via the external tracer and returns a structured trace.
// @ID           execute
// @Tags         execution
// @Accept       json
// @Produce      json
// @Param        request  body      executeRequest  true  "Execution request"
// @Success      200      {object}  executeResponse
// @Failure      400      {object}  map[string]string
// @Router       /execute [post]
func (h *ExecuteHandler) Execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return apierr.BadRequest("invalid request body")
	}
	if req.Language == "" || req.Code == "" {
		return apierr.BadRequest("language and code are required")
	}

	result, err := h.svc.Execute(c.Request().Context(), execsvc.Request{
		Language:    execsvc.Language(req.Language),
		Code:        req.Code,
		Breakpoints: req.Breakpoints,
	})
	if err != nil {
		return err
	}

	resp := executeResponse{Events: result.Document.Events, Error: result.IsError}
	if result.Output != "" {
		resp.Output = &result.Output
	}
	if result.Message != "" {
		resp.Message = &result.Message
	}
	return c.JSON(http.StatusOK, resp)
}
