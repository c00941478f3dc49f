package transport

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fourinarow-server/internal/config"
	"fourinarow-server/internal/connregistry"
	"fourinarow-server/internal/lobbyregistry"
	"fourinarow-server/internal/storage"
)

func testHub(t *testing.T) (*Hub, func()) {
	t.Helper()
	dir := storage.NewMemory(storage.SystemClock{})
	reg := lobbyregistry.New(dir, dir)
	conn := connregistry.New(reg, dir)
	reg.SetNotifier(conn)

	ctx, cancel := context.WithCancel(context.Background())
	go reg.Run(ctx)
	go conn.Run(ctx)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := New(logger, config.Config{Environment: "test"}, reg, dir, conn)
	go hub.Run(ctx)

	return hub, cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	return c
}

func TestTransport_HelloNewThenPingPong(t *testing.T) {
	hub, cancel := testHub(t)
	defer cancel()

	srv := httptest.NewServer(hub.Handler(func() error { return nil }))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx := context.Background()
	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("HELLO::2::NEW")))
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), "HELLO::NEW::")
	token := strings.TrimPrefix(string(data), "HELLO::NEW::")
	require.GreaterOrEqual(t, len(token), 32)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("MSG::1::PING")))

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	sawPong := false
	for i := 0; i < 4 && !sawPong; i++ {
		_, data, err := c.Read(readCtx)
		require.NoError(t, err)
		if strings.Contains(string(data), "PONG") {
			sawPong = true
		}
	}
	require.True(t, sawPong, "expected a PONG frame")
}

func TestTransport_OutdatedProtocolRejected(t *testing.T) {
	hub, cancel := testHub(t)
	defer cancel()

	srv := httptest.NewServer(hub.Handler(func() error { return nil }))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx := context.Background()
	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("HELLO::1::NEW")))
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "HELLO::OUTDATED", string(data))
}

func TestTransport_LegacyClientBypassesHello(t *testing.T) {
	hub, cancel := testHub(t)
	defer cancel()

	srv := httptest.NewServer(hub.Handler(func() error { return nil }))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx := context.Background()
	c := dial(t, url)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("PING")))

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, data, err := c.Read(readCtx)
	require.NoError(t, err)
	require.Equal(t, "PONG", string(data))
}
