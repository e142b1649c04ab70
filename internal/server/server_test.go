package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/obdlink/internal/manager"
	"github.com/shaunagostinho/obdlink/internal/profile"
	"github.com/shaunagostinho/obdlink/internal/transport"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := profile.Open(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	mgr := manager.New(transport.NewDemoLocator(), transport.NewDemoDialer())
	t.Cleanup(func() { mgr.Disconnect() })
	return New(":0", mgr, store)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func connectDemo(t *testing.T, s *Server) {
	t.Helper()
	rec, body := doJSON(t, s.handleConnect, http.MethodPost, "/api/connect", "{}")
	require.Equal(t, http.StatusOK, rec.Code, "connect: %v", body)
	require.Equal(t, true, body["success"])
}

func TestConnectAndStatus(t *testing.T) {
	s := testServer(t)
	connectDemo(t, s)

	rec, body := doJSON(t, s.handleStatus, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "12.6V", body["voltage"])
}

func TestDTCEndpoints(t *testing.T) {
	s := testServer(t)
	connectDemo(t, s)

	rec, body := doJSON(t, s.handleDTCs, http.MethodGet, "/api/dtcs?kind=stored", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = doJSON(t, s.handleDTCs, http.MethodGet, "/api/dtcs?kind=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])

	rec, _ = doJSON(t, s.handleDTCs, http.MethodGet, "/api/dtcs?kind=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearRequiresConfirmation(t *testing.T) {
	s := testServer(t)
	connectDemo(t, s)

	rec, body := doJSON(t, s.handleClear, http.MethodPost, "/api/dtcs/clear", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_config", body["error_kind"])

	rec, body = doJSON(t, s.handleClear, http.MethodPost, "/api/dtcs/clear", `{"confirm": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestLiveRequiresPIDs(t *testing.T) {
	s := testServer(t)
	connectDemo(t, s)

	rec, _ := doJSON(t, s.handleLive, http.MethodGet, "/api/live", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, s.handleLive, http.MethodGet, "/api/live?pids=0C,0D", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body, 2)
}

func TestQueryWhileDisconnectedIsConflict(t *testing.T) {
	s := testServer(t)

	rec, body := doJSON(t, s.handleDTCs, http.MethodGet, "/api/dtcs", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_connected", body["error_kind"])
}

func TestVehicleCachedPerGeneration(t *testing.T) {
	s := testServer(t)
	connectDemo(t, s)

	rec, body := doJSON(t, s.handleVehicle, http.MethodGet, "/api/vehicle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1G1JC5444R7252367", body["vin"])

	// Second call is served from the per-generation cache.
	rec, body = doJSON(t, s.handleVehicle, http.MethodGet, "/api/vehicle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1G1JC5444R7252367", body["vin"])
}

func TestConnectByUnknownProfile(t *testing.T) {
	s := testServer(t)

	rec, body := doJSON(t, s.handleConnect, http.MethodPost, "/api/connect", `{"profile": "missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_config", body["error_kind"])
}
