package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/Aiuser8/thallos-llm-service/internal/coordinator"
	"github.com/Aiuser8/thallos-llm-service/internal/executor"
)

type fakeCoordinator struct {
	resp coordinator.Response
	err  error
}

func (f *fakeCoordinator) Handle(ctx context.Context, question string) (coordinator.Response, error) {
	return f.resp, f.err
}

func newRequest(t *testing.T, method, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(method, "/query", bytes.NewBufferString(body))
	r.Header.Set("x-service-key", "secret")
	return r
}

func TestHandleQueryReturnsFullResponse(t *testing.T) {
	coord := &fakeCoordinator{resp: coordinator.Response{
		OK:     true,
		Answer: "42 rows returned.",
		SQL:    "SELECT 1",
		Rows:   []executor.Row{{"a": 1}},
	}}
	h := New(coord, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"how many rows"}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body queryResponseFull
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "SELECT 1", body.SQL)
	assert.Len(t, body.Rows, 1)
}

func TestHandleQueryMinimalOmitsSQLAndRows(t *testing.T) {
	coord := &fakeCoordinator{resp: coordinator.Response{OK: true, Answer: "ok", SQL: "SELECT 1"}}
	h := New(coord, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"x","minimal":true}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "SELECT 1")
}

func TestHandleQueryRejectsNonPost(t *testing.T) {
	h := New(&fakeCoordinator{}, "secret", time.Second)

	req := newRequest(t, http.MethodGet, "")
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleQueryRejectsMissingServiceKeyCrossOrigin(t *testing.T) {
	h := New(&fakeCoordinator{}, "secret", time.Second)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"x"}`))
	req.Host = "gateway.internal"
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleQueryAllowsSameOriginWithoutServiceKey(t *testing.T) {
	coord := &fakeCoordinator{resp: coordinator.Response{OK: true, Answer: "ok"}}
	h := New(coord, "secret", time.Second)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"x"}`))
	req.Host = "gateway.internal"
	req.Header.Set("Origin", "https://gateway.internal")
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleQueryRejectsMissingQuestion(t *testing.T) {
	h := New(&fakeCoordinator{}, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"   "}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryRejectsInvalidJSON(t *testing.T) {
	h := New(&fakeCoordinator{}, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `not json`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuerySurfacesGuardRejectionAs400WithSQL(t *testing.T) {
	coord := &fakeCoordinator{err: gwerrors.GuardRejection("NotReadOnly", "forbidden keyword: DROP", "DROP TABLE public.market_data")}
	h := New(coord, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"drop all tables"}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NotReadOnly", body.Kind)
	assert.Equal(t, "DROP TABLE public.market_data", body.SQL)
}

func TestHandleQuerySurfacesDatabaseUnavailableAs500(t *testing.T) {
	coord := &fakeCoordinator{err: gwerrors.Wrap(assertError("connection refused"), gwerrors.ErrTypeDatabaseUnavail, "database liveness probe failed")}
	h := New(coord, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"x"}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleQuerySurfacesDeadlineExceededAs504(t *testing.T) {
	coord := &fakeCoordinator{err: gwerrors.DeadlineExceeded(assertError("query execution failed"))}
	h := New(coord, "secret", time.Second)

	req := newRequest(t, http.MethodPost, `{"question":"x"}`)
	rec := httptest.NewRecorder()

	h.handleQuery(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
