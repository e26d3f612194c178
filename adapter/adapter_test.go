package adapter

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

	"github.com/qsysmcp/broker/qsys"
)

var upgrader = websocket.Upgrader{}

type fakeEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// newFakeCore answers Component.GetComponents with one component and
// Component.GetControls with one control, and echoes Control.Set/Get.
func newFakeCore(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			require.NoError(t, json.Unmarshal(data, &in))

			var result json.RawMessage
			switch in.Method {
			case qsys.MethodComponentGetComponents:
				result, _ = json.Marshal([]map[string]interface{}{
					{"Name": "Gain1", "Type": "gain", "Properties": map[string]string{}},
				})
			case qsys.MethodComponentGetControls:
				result, _ = json.Marshal([]map[string]interface{}{
					{"Name": "gain", "Type": "Float", "Value": -10.0, "String": "-10dB", "Position": 0.5, "Direction": "read-write"},
				})
			case qsys.MethodControlGet:
				result, _ = json.Marshal([]map[string]interface{}{
					{"Name": "Gain1.gain", "Value": -20.0, "String": "-20dB"},
				})
			case qsys.MethodControlSet:
				result, _ = json.Marshal(map[string]bool{"ok": true})
			case qsys.MethodStatusGet:
				result, _ = json.Marshal(map[string]interface{}{"Platform": "Core 110f", "State": "Active"})
			default:
				result, _ = json.Marshal(map[string]interface{}{})
			}

			resp := fakeEnvelope{JSONRPC: "2.0", ID: in.ID, Result: result}
			body, _ := json.Marshal(resp)
			conn.WriteMessage(websocket.TextMessage, body)
		}
	}))
}

func newTestAdapter(t *testing.T) (*Adapter, func()) {
	t.Helper()
	srv := newFakeCore(t)

	c := qsys.New(qsys.Target{Host: "127.0.0.1", Timeout: 2 * time.Second})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c.SetTestDialURL(wsURL)
	require.NoError(t, c.Connect(context.Background()))

	a := New(c)
	return a, func() {
		c.Disconnect()
		srv.Close()
	}
}

func TestAdapter_ListComponents(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	components, err := a.ListComponents(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, components, 1)
	assert.Equal(t, "Gain1", components[0].Name)
}

func TestAdapter_ListControls(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	controls, err := a.ListControls(context.Background(), "Gain1")
	require.NoError(t, err)
	require.Len(t, controls, 1)
	assert.Equal(t, "Gain1.gain", controls[0].FQName)
}

func TestAdapter_ListControls_UnknownComponent(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	_, err := a.ListControls(context.Background(), "NoSuchComponent")
	assert.Error(t, err)
}

func TestAdapter_GetControlValues_RejectsOversizeBatch(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	names := make([]string, maxBatchControls+1)
	_, err := a.GetControlValues(context.Background(), names)
	assert.Error(t, err)
}

func TestAdapter_GetSetControlValues(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	setResults, err := a.SetControlValues(context.Background(), []ControlSetRequest{{Name: "Gain1.gain", Value: -20.0}})
	require.NoError(t, err)
	require.Len(t, setResults, 1)
	assert.True(t, setResults[0].OK)

	values, err := a.GetControlValues(context.Background(), []string{"Gain1.gain"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, -20.0, values[0].Value)
}

func TestAdapter_SetControlValues_AnnotatesIgnoredRampFade(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	ramp := 2.5
	setResults, err := a.SetControlValues(context.Background(), []ControlSetRequest{
		{Name: "Gain1.gain", Value: -20.0, Ramp: &ramp},
	})
	require.NoError(t, err)
	require.Len(t, setResults, 1)
	assert.True(t, setResults[0].OK)
	assert.Equal(t, []string{"ramp"}, setResults[0].IgnoredFields)
}

func TestAdapter_QueryCoreStatus(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	status, err := a.QueryCoreStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Core 110f", status.Platform)
}

func TestAdapter_ChangeGroupLifecycle(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	_, err := a.CreateChangeGroup("g1", 0)
	require.NoError(t, err)
	require.NoError(t, a.AddControlsToChangeGroup("g1", []string{"Gain1.gain"}))

	// discovery populates the control index so the poll can baseline it.
	_, err = a.ListControls(context.Background(), "Gain1")
	require.NoError(t, err)

	ev, err := a.PollChangeGroup("g1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.Changes)

	require.NoError(t, a.DestroyChangeGroup("g1"))
	assert.NotContains(t, a.ListChangeGroups(), "g1")
}

func TestAdapter_CreateChangeGroup_GeneratesIDWhenOmitted(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	g, err := a.CreateChangeGroup("", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Contains(t, a.ListChangeGroups(), g.ID)
}
