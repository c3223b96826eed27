package signaling

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

	"github.com/avdeyev/voicemesh/internal/protocol"
)

// captureServer echoes nothing; it just records every frame the client sends.
func captureServer(t *testing.T) (*httptest.Server, <-chan []byte) {
	t.Helper()
	got := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- data
		}
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextFrame(t *testing.T, got <-chan []byte) map[string]any {
	t.Helper()
	select {
	case data := <-got:
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame reached the server")
		return nil
	}
}

func TestLeaveDeliveredAfterClose(t *testing.T) {
	srv, got := captureServer(t)

	c, err := Dial(context.Background(), wsURL(srv), Handlers{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(context.Background())
	}()

	// The shutdown sequence enqueues the leave and immediately closes the
	// client. The queue must drain onto the wire before the socket goes
	// down, or the server never learns this was a deliberate departure.
	require.NoError(t, c.SendLeave())
	c.Close()

	frame := nextFrame(t, got)
	assert.Equal(t, protocol.TypeLeave, frame["type"])

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after close")
	}
}

func TestQueueDrainsInOrderOnClose(t *testing.T) {
	srv, got := captureServer(t)

	c, err := Dial(context.Background(), wsURL(srv), Handlers{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(context.Background())
	}()

	require.NoError(t, c.SendMuteState(true))
	require.NoError(t, c.SendLeave())
	c.Close()

	assert.Equal(t, protocol.TypeMuteState, nextFrame(t, got)["type"])
	assert.Equal(t, protocol.TypeLeave, nextFrame(t, got)["type"])
	<-done
}

func TestSendAfterCloseFails(t *testing.T) {
	srv, _ := captureServer(t)

	c, err := Dial(context.Background(), wsURL(srv), Handlers{})
	require.NoError(t, err)
	c.Close()

	assert.Error(t, c.SendLeave())
}
