package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/arc-self/codetrace/internal/apierr"
	"github.com/arc-self/codetrace/internal/execsvc"
	"github.com/arc-self/codetrace/internal/handler"
	"github.com/arc-self/codetrace/internal/trace"
)

type MockExecutor struct {
	ctrl     *gomock.Controller
	recorder *MockExecutorRecorder
}
type MockExecutorRecorder struct {
	mock *MockExecutor
}

func NewMockExecutor(ctrl *gomock.Controller) *MockExecutor {
	m := &MockExecutor{ctrl: ctrl}
	m.recorder = &MockExecutorRecorder{mock: m}
	return m
}
func (m *MockExecutor) EXPECT() *MockExecutorRecorder { return m.recorder }

func (m *MockExecutor) Execute(ctx context.Context, req execsvc.Request) (execsvc.Result, error) {
	ret := m.ctrl.Call(m, "Execute", ctx, req)
	err, _ := ret[1].(error)
	return ret[0].(execsvc.Result), err
}
func (mr *MockExecutorRecorder) Execute(ctx, req any) *gomock.Call {
	return mr.mock.ctrl.RecordCall(mr.mock, "Execute", ctx, req)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(zap.NewNop())
	return e
}

func TestExecuteHandler_HappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := NewMockExecutor(ctrl)
	mockSvc.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(execsvc.Result{
		Document: trace.Document{Events: []trace.Event{trace.Step(1, map[string]any{"x": 1.0}, nil)}},
	}, nil)

	e := newEcho()
	h := handler.NewExecuteHandler(mockSvc)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"language": "lang-a", "code": "let x = 1;"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":false`)
}

func TestExecuteHandler_MissingCodeIsBadRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := NewMockExecutor(ctrl)
	e := newEcho()
	h := handler.NewExecuteHandler(mockSvc)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"language": "lang-a"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteHandler_ServicePropagatesAPIError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSvc := NewMockExecutor(ctrl)
	mockSvc.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(execsvc.Result{}, apierr.BadRequest("unsupported language"))

	e := newEcho()
	h := handler.NewExecuteHandler(mockSvc)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"language": "lang-z", "code": "x"})
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
