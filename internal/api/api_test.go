package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/catherinevee/vtagger/internal/cache"
	"github.com/catherinevee/vtagger/internal/dimension"
	"github.com/catherinevee/vtagger/internal/importstatus"
	"github.com/catherinevee/vtagger/internal/progress"
	"github.com/catherinevee/vtagger/internal/store"
	"github.com/catherinevee/vtagger/internal/sync"
	"github.com/catherinevee/vtagger/internal/umbrella"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dims := dimension.New(st)
	require.NoError(t, dims.Reload())

	client := umbrella.New("http://127.0.0.1:1", "", umbrella.Credentials{Username: "u", Password: "p"})
	bcast := progress.New()
	coord := sync.New(client, dims, st, bcast, t.TempDir())
	imports := importstatus.New(client, cache.NewMemory())

	return New(coord, dims, st, bcast, imports, []string{"https://console.example"})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleCancel_AlwaysReturns200(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sync/cancel", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListDimensions_EmptyInitially(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/dimensions", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Empty(t, body.Data)
}

func TestHandlePutDimension_ValidationFailureReturns400(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{})
	req := httptest.NewRequest(http.MethodPut, "/api/dimensions", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePutDimension_ThenListReflectsIt(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{
		"vtagName":     "Environment",
		"defaultValue": "Unallocated",
		"statements": []map[string]string{
			{"matchExpression": "TAG['env'] == 'prod'", "valueExpression": "'Production'"},
		},
	})
	req := httptest.NewRequest(http.MethodPut, "/api/dimensions", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/dimensions", nil)
	listRec := httptest.NewRecorder()
	s.ServeHTTP(listRec, listReq)

	assert.Contains(t, listRec.Body.String(), "Environment")
}

func TestHandleDeleteDimension(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{
		"vtagName":     "Environment",
		"defaultValue": "Unallocated",
		"statements": []map[string]string{
			{"matchExpression": "TAG['env'] == 'prod'", "valueExpression": "'Production'"},
		},
	})
	putReq := httptest.NewRequest(http.MethodPut, "/api/dimensions", bytes.NewReader(payload))
	s.ServeHTTP(httptest.NewRecorder(), putReq)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/dimensions/Environment", nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusOK, delRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/dimensions", nil)
	listRec := httptest.NewRecorder()
	s.ServeHTTP(listRec, listReq)
	assert.NotContains(t, listRec.Body.String(), "Environment")
}

func TestCORSMiddleware_ReflectsAllowedOrigin(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://console.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "https://console.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_RejectsUnlistedOrigin(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleProgress_IdleWithNoHistoryOmitsLastResult(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sync/progress", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
}

func TestHandleImportStatus_UpstreamFailureReturnsErrorPhaseRecord(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/uploads/upload-1/status?account_id=42&sync_type=week", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fetch_error")
}

func TestHandleListDiscoveredTags_ReflectsStoredSamples(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.RecordDiscoveredTag("env", `["prod","dev"]`))

	req := httptest.NewRequest(http.MethodGet, "/api/discovered-tags", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "env")
	assert.Contains(t, rec.Body.String(), "prod")
}

func TestStartSync_ValidationErrorOnBadDate(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]string{"start_date": "not-a-date", "end_date": "2026-07-26"})
	req := httptest.NewRequest(http.MethodPost, "/api/sync/range", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
