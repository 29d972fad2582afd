// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/persistence"
	"github.com/mtp-gateway/gateway/service/servicemgr"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

func newTestManager(t *testing.T) (*Manager, *httptest.Server, string) {
	t.Helper()

	mock := connector.NewMockConnector("plc1", map[string]any{"40001": float64(10)})
	require.NoError(t, mock.Connect(context.Background()))
	tags := tagmgr.New()
	tags.RegisterConnector("plc1", mock, time.Second)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{
		Name: "Tank.Level", Connector: "plc1", Address: "40001",
		DataType: tagmodel.DataTypeFloat64, Writable: true,
	}))
	_, err := tags.ReadTag(context.Background(), "Tank.Level")
	require.NoError(t, err)

	svc := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tags})
	require.NoError(t, svc.RegisterService(servicemgr.ServiceConfig{Name: "Feed", Mode: servicemgr.ProxyThick}))

	store, err := persistence.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	m := New(tags, svc, []string{"Feed"}, store, store, nil,
		WithJWTSigningKey("test-signing-key"),
		WithUsers([]User{
			{Username: "op1", PasswordHash: hash, Role: roleOperator},
			{Username: "eng1", PasswordHash: hash, Role: roleEngineer},
		}),
	)

	srv := httptest.NewServer(m.setupRouter())
	t.Cleanup(srv.Close)

	token, _, err := m.auth.login("op1", "s3cret")
	require.NoError(t, err)
	return m, srv, token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLoginEndpointReturnsToken(t *testing.T) {
	_, srv, _ := newTestManager(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", loginRequest{Username: "op1", Password: "s3cret"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	require.Equal(t, "operator", out.Role)
}

func TestProtectedEndpointRejectsMissingToken(t *testing.T) {
	_, srv, _ := newTestManager(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/tags", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListTagsReturnsRegisteredTag(t *testing.T) {
	_, srv, token := newTestManager(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/tags", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []tagResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	require.Equal(t, "Tank.Level", out[0].Name)
}

func TestWriteTagSucceeds(t *testing.T) {
	m, srv, _ := newTestManager(t)
	engToken, _, err := m.auth.login("eng1", "s3cret")
	require.NoError(t, err)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/tags/Tank.Level", engToken, writeTagRequest{Value: 42.0})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteTagRejectsOperatorRole(t *testing.T) {
	_, srv, opToken := newTestManager(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/tags/Tank.Level", opToken, writeTagRequest{Value: 42.0})
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServiceCommandDrivesStateMachine(t *testing.T) {
	_, srv, token := newTestManager(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/services/Feed/command", token, serviceCommandRequest{Command: "START"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, true, out["success"])
	require.Equal(t, "STARTING", out["to"])
}

func TestAlarmLifecycleThroughRESTRequiresEngineerToClear(t *testing.T) {
	m, srv, opToken := newTestManager(t)
	ctx := context.Background()

	_, err := m.alarms.UpsertAlarm(ctx, alarmpkg.Raise("LT101_HH", "LT101", alarmpkg.PriorityEmergency, "high high", 99))
	require.NoError(t, err)

	ackResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/alarms/1/acknowledge", opToken, ackAlarmRequest{By: "op1"})
	defer ackResp.Body.Close()
	require.Equal(t, http.StatusOK, ackResp.StatusCode)

	clearResp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/alarms/1/clear", opToken, nil)
	defer clearResp.Body.Close()
	require.Equal(t, http.StatusForbidden, clearResp.StatusCode)
}
