package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/codetrace/internal/debugsvc"
	"github.com/arc-self/codetrace/internal/handler"
	"github.com/arc-self/codetrace/internal/langb"
)

func TestDebugHandler_Start_RejectsNonLangB(t *testing.T) {
	e := newEcho()
	h := handler.NewDebugHandler(&langb.Runner{}, debugsvc.NewStore(), nil)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"language": "lang-a", "code": "x"})
	req := httptest.NewRequest(http.MethodPost, "/debug/start", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugHandler_Command_UnknownSessionIsNotFound(t *testing.T) {
	e := newEcho()
	h := handler.NewDebugHandler(&langb.Runner{}, debugsvc.NewStore(), nil)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"sessionId": "does-not-exist", "command": "step"})
	req := httptest.NewRequest(http.MethodPost, "/debug/command", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugHandler_Command_StepOnEmptySessionReportsDone(t *testing.T) {
	store := debugsvc.NewStore()
	id, err := store.Create(nil, nil)
	require.NoError(t, err)

	e := newEcho()
	h := handler.NewDebugHandler(&langb.Runner{}, store, nil)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"sessionId": id, "command": "step"})
	req := httptest.NewRequest(http.MethodPost, "/debug/command", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"done":true`)
}

func TestDebugHandler_Command_UnknownCommandIsBadRequest(t *testing.T) {
	store := debugsvc.NewStore()
	id, err := store.Create(nil, nil)
	require.NoError(t, err)

	e := newEcho()
	h := handler.NewDebugHandler(&langb.Runner{}, store, nil)
	h.Register(e)

	body, _ := json.Marshal(map[string]string{"sessionId": id, "command": "rewind"})
	req := httptest.NewRequest(http.MethodPost, "/debug/command", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
