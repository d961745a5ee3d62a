package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestTCPClientReceivesSettingsEvents(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.State = func() bool { return true }
	srv := NewServer("", hub, quietLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	var welcome WelcomeEvent
	require.NoError(t, json.Unmarshal([]byte(line), &welcome))
	assert.Equal(t, TypeWelcome, welcome.Type)
	assert.Equal(t, "tcp", welcome.Transport)
	assert.True(t, welcome.AdsEnabled)

	require.Eventually(t, func() bool { return hub.Stats().TCPClients == 1 }, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.BroadcastJSON(NewAdsEvent(false, at))

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	var ev SettingsEvent
	require.NoError(t, json.Unmarshal([]byte(line), &ev))
	assert.Equal(t, TypeAdsSettings, ev.Type)
	assert.False(t, ev.Enabled)
	assert.True(t, at.Equal(ev.At))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWebsocketClientReceivesBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(quietLogger())
	r := gin.New()
	r.GET("/ws", WSHandler(hub))
	ts := httptest.NewServer(r)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"transport":"websocket"`)

	require.Eventually(t, func() bool { return hub.Stats().WSClients == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.BroadcastJSON(NewAdsEvent(true, time.Now()))

	_, msg, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"settings.ads"`)
	assert.Contains(t, string(msg), `"enabled":true`)

	ws.Close()
	require.Eventually(t, func() bool { return hub.Stats().WSClients == 0 }, 2*time.Second, 10*time.Millisecond)
}
