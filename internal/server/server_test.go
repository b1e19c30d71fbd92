package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/pipegraph/internal/compiler/errors"
)

const echoSource = `from typing import List, Type
from planai import Graph, Task, TaskWorker


class Query(Task):
    text: str


class Result(Task):
    text: str


class Echo(TaskWorker):
    output_types: List[Type[Task]] = [Result]

    def consume_work(self, task: Query):
        self.publish_work(Result(text=task.text), input_task=task)


graph = Graph(name="Echoes")
echo = Echo()
graph.add_workers(echo)
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := New(ctx, Options{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, ts *httptest.Server, operation string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/"+operation, "application/json", strings.NewReader(string(data)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestImportThenExportOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp, imported := post(t, ts, "import", ImportRequest{File: "echo.py", Source: echoSource})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", imported)
	snap, ok := imported["snapshot"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Echoes", snap["name"])
	assert.Equal(t, []interface{}{}, imported["diagnostics"])

	resp, exported := post(t, ts, "export", map[string]interface{}{"snapshot": snap})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", exported)
	assert.Equal(t, echoSource, exported["source"])
}

func TestFormatAndEquivalentOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	resp, formatted := post(t, ts, "format", ImportRequest{Source: echoSource})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, formatted["changed"])

	reordered := strings.Replace(echoSource, "echo = Echo()\n", "echo = Echo()\n\n", 1)
	resp, result := post(t, ts, "equivalent", EquivalentRequest{A: echoSource, B: reordered})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, result["equivalent"])
}

func TestDotOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	resp, out := post(t, ts, "dot", DotRequest{Source: echoSource})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out["dot"], "digraph")
	assert.Contains(t, out["dot"], "Echo")
}

func TestOperationErrors(t *testing.T) {
	_, ts := newTestServer(t)

	resp, out := post(t, ts, "import", ImportRequest{Source: "class Broken(:\n"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	diag, ok := out["diagnostic"].(map[string]interface{})
	require.True(t, ok, "body: %v", out)
	assert.NotEmpty(t, diag["message"])

	resp, out = post(t, ts, "import", ImportRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "source is required", out["message"])

	resp, out = post(t, ts, "export", map[string]interface{}{"snapshot": map[string]interface{}{"version": "0"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["message"], "unsupported snapshot version")

	resp, _ = post(t, ts, "compile", ImportRequest{Source: echoSource})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, request Message) Message {
	t.Helper()
	require.NoError(t, conn.WriteJSON(request))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestWebsocketImport(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	data, err := json.Marshal(ImportRequest{File: "echo.py", Source: echoSource})
	require.NoError(t, err)
	reply := roundTrip(t, conn, Message{Type: "import", ID: "1", Data: data})
	assert.Equal(t, "import.result", reply.Type)
	assert.Equal(t, "1", reply.ID)

	var result ImportResponse
	require.NoError(t, json.Unmarshal(reply.Data, &result))
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, "Echoes", result.Snapshot.Name)

	pong := roundTrip(t, conn, Message{Type: "ping", ID: "2"})
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, "2", pong.ID)
}

func TestWebsocketErrors(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	data, err := json.Marshal(ImportRequest{Source: "class Broken(:\n"})
	require.NoError(t, err)
	reply := roundTrip(t, conn, Message{Type: "import", ID: "7", Data: data})
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "7", reply.ID)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Data, &payload))
	require.NotNil(t, payload.Diagnostic)
	assert.Equal(t, errors.SeverityError, payload.Diagnostic.Severity)

	reply = roundTrip(t, conn, Message{Type: "compile", ID: "8"})
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "8", reply.ID)
	var unknown ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Data, &unknown))
	assert.Equal(t, "unknown message type: compile", unknown.Message)
	assert.Nil(t, unknown.Diagnostic)
}

func TestSubscribersReceivePublishedUpdates(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	data, err := json.Marshal(SubscribeRequest{Room: "echo.py"})
	require.NoError(t, err)
	reply := roundTrip(t, conn, Message{Type: "subscribe", ID: "1", Data: data})
	require.Equal(t, "subscribed", reply.Type)
	assert.Equal(t, 1, s.Hub().RoomSize("echo.py"))

	s.Publish("other.py", "graph.updated", map[string]string{"file": "other.py"})
	s.Publish("echo.py", "graph.updated", map[string]string{"file": "echo.py"})

	update := read(t, conn)
	assert.Equal(t, "graph.updated", update.Type)
	assert.JSONEq(t, `{"file":"echo.py"}`, string(update.Data))
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHubShutdownWaitsForLoop(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	client := &Client{ID: "c1", hub: hub, send: make(chan []byte, 1)}
	hub.clients[client] = true

	hub.Start()
	hub.Shutdown()

	assert.True(t, client.closed.Load(), "shutdown returned before the loop cleaned up")
	assert.Equal(t, 0, hub.ClientCount())
}
