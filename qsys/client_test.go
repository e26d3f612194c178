package qsys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// newEchoCoreServer answers every request with {"result": {"echo": <method>}}.
func newEchoCoreServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env rpcEnvelope
			require.NoError(t, json.Unmarshal(data, &env))

			result, _ := json.Marshal(map[string]string{"echo": env.Method})
			resp := rpcEnvelope{JSONRPC: "2.0", ID: env.ID, Result: result}
			body, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, body)
		}
	}))
}

func dialTestClient(t *testing.T, wsURL string) *Client {
	t.Helper()
	c := New(Target{Host: "127.0.0.1", Port: 0, Timeout: 2 * time.Second})
	c.dialURLOverride = "ws" + strings.TrimPrefix(wsURL, "http")
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestClient_ConnectAndSendCommand(t *testing.T) {
	srv := newEchoCoreServer(t)
	defer srv.Close()

	c := dialTestClient(t, srv.URL)
	defer c.Disconnect()

	assert.True(t, c.IsConnected())
	assert.Equal(t, StateConnected, c.State())

	result, err := c.SendCommand(context.Background(), "StatusGet", nil)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "StatusGet", decoded["echo"])
}

func TestClient_SendCommandTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Never respond.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Target{Host: "127.0.0.1", Timeout: 50 * time.Millisecond})
	c.dialURLOverride = "ws" + strings.TrimPrefix(srv.URL, "http")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := c.SendCommand(ctx, "StatusGet", nil)
	assert.Error(t, err)
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	srv := newEchoCoreServer(t)
	defer srv.Close()

	c := dialTestClient(t, srv.URL)
	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
}
