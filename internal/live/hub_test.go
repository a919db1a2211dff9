package live

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(func(deviceID string) any {
		return map[string]string{"watching": deviceID}
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestInitSnapshotOnConnect(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "?device=BESS-001")

	msg := read(t, conn)
	assert.Equal(t, "init", msg.Type)
	assert.Equal(t, "BESS-001", msg.DeviceID)
	assert.Equal(t, map[string]any{"watching": "BESS-001"}, msg.Data)
}

func TestBroadcastFiltersByDevice(t *testing.T) {
	hub, srv := startHub(t)
	one := dial(t, srv, "?device=BESS-001")
	all := dial(t, srv, "")
	read(t, one)
	read(t, all)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("BESS-002", "reading", map[string]float64{"bms_soc": 20})
	hub.Broadcast("BESS-001", "series", []int{1})

	msg := read(t, one)
	assert.Equal(t, "series", msg.Type)
	assert.Equal(t, "BESS-001", msg.DeviceID)

	msg = read(t, all)
	assert.Equal(t, "reading", msg.Type)
	assert.Equal(t, "BESS-002", msg.DeviceID)
	msg = read(t, all)
	assert.Equal(t, "series", msg.Type)
}

func TestClientUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	read(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast("BESS-001", "reading", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked")
	}
}

func TestConnectAfterShutdownDoesNotHang(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := httptest.NewServer(NewRouter(hub))
	defer srv.Close()
	conn := dial(t, srv, "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "server kept the connection open: %v", err)
	assert.Equal(t, 0, hub.ClientCount())
}
