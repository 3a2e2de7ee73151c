package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugnet/broker"
	"plugnet/wire"
)

func newTestServer(t *testing.T) (*Server, *broker.Registry) {
	t.Helper()
	reg := broker.NewRegistry()
	cfg := broker.NewConfig(broker.WithCommandDeadline(30 * time.Millisecond))
	bridge := broker.NewBridge(reg, cfg, broker.NewDefaultMetrics())
	return NewServer(bridge, logrus.NewEntry(logrus.New())), reg
}

func TestHandleListReturnsAllPlugs(t *testing.T) {
	server, reg := newTestServer(t)
	id := uuid.New()
	rec, err := reg.Insert(id, 4)
	require.NoError(t, err)
	rec.SetPower(wire.PowerOn)

	req := httptest.NewRequest(http.MethodGet, "/api/list", nil)
	rec2 := httptest.NewRecorder()
	server.engine.ServeHTTP(rec2, req)

	assert.Equal(t, http.StatusOK, rec2.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))
	require.Len(t, body.Plugs, 1)
	assert.Equal(t, id, body.Plugs[0].ID)
}

func TestHandleQueryUnknownPlugReturnsNulls(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/query?id="+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.State)
	assert.Nil(t, body.LastSeen)
}

func TestHandleQueryInvalidIDReturnsBadRequest(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/query?id=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetStateRejectsInvalidState(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/setstate?id="+uuid.New().String()+"&state=sideways", nil)
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSetStateUnknownPlug(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/setstate?id="+uuid.New().String()+"&state=on", nil)
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body setStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Present)
	assert.False(t, body.Success)
}

func TestHandleSetStateKnownPlugTimesOutWithoutDriver(t *testing.T) {
	server, reg := newTestServer(t)
	id := uuid.New()
	_, err := reg.Insert(id, 4)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/setstate?id="+id.String()+"&state=on", nil)
	rec := httptest.NewRecorder()
	server.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body setStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Present)
	assert.False(t, body.Success)
}
