package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, srv *httptest.Server, pool string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?pool=" + pool
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readBook(t *testing.T, conn *websocket.Conn) BookMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg BookMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_Feed(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	defer env.handler.Hub.Close()

	alice := env.login(t, "alice")

	conn := dialFeed(t, srv, "pool-1")
	other := dialFeed(t, srv, "pool-2")

	initial := readBook(t, conn)
	assert.Equal(t, "orderbook", initial.Type)
	assert.Equal(t, "pool-1", initial.Book.PoolID)
	assert.Empty(t, initial.Book.BuyOrders)
	readBook(t, other)

	placed := env.place(t, alice, limit("BUY", "3", "2"))

	update := readBook(t, conn)
	require.Len(t, update.Book.BuyOrders, 1)
	assert.Equal(t, placed.Order.ID, update.Book.BuyOrders[0].ID)

	// pool-2 subscribers see nothing from pool-1 activity
	require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_BroadcastAll(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	defer env.handler.Hub.Close()

	conn := dialFeed(t, srv, "pool-9")
	readBook(t, conn)

	env.handler.Hub.BroadcastAll()
	msg := readBook(t, conn)
	assert.Equal(t, "pool-9", msg.Book.PoolID)
}
