// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

func dialWS(t *testing.T, srvURL, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/api/v1/ws"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketSubscribeAcksAndReceivesTagUpdate(t *testing.T) {
	m, srv, token := newTestManager(t)
	conn := dialWS(t, srv.URL, token)

	require.NoError(t, conn.WriteJSON(clientCommand{Action: "subscribe", Channel: "tags"}))

	var ack serverAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Type)

	m.broadcaster.onTagChange(context.Background(), "Tank.Level", tagmodel.Value{}, tagmodel.NewValue(7.0, quality.Good))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e event
	require.NoError(t, conn.ReadJSON(&e))
	require.Equal(t, "tag_update", e.Type)
}

func TestWebSocketUnknownActionReturnsError(t *testing.T) {
	_, srv, token := newTestManager(t)
	conn := dialWS(t, srv.URL, token)

	require.NoError(t, conn.WriteJSON(clientCommand{Action: "bogus"}))

	var ack serverAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "error", ack.Type)
}

func TestWebSocketPingReturnsPong(t *testing.T) {
	_, srv, token := newTestManager(t)
	conn := dialWS(t, srv.URL, token)

	require.NoError(t, conn.WriteJSON(clientCommand{Action: "ping"}))

	var ack serverAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "pong", ack.Type)
}

func TestHubBroadcastReachesSubscribedWebSocketClient(t *testing.T) {
	m, srv, token := newTestManager(t)
	conn := dialWS(t, srv.URL, token)

	require.NoError(t, conn.WriteJSON(clientCommand{Action: "subscribe", Channel: "tags"}))
	var ack serverAck
	require.NoError(t, conn.ReadJSON(&ack))

	m.broadcaster.onTagChange(context.Background(), "Tank.Level", tagmodel.Value{}, tagmodel.NewValue(12.5, quality.Good))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e event
	require.NoError(t, conn.ReadJSON(&e))
	require.Equal(t, "tag_update", e.Type)

	var payload tagUpdatePayload
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	require.Equal(t, "Tank.Level", payload.Tag)
}
