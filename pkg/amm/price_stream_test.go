package amm

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceHubBroadcast(t *testing.T) {
	hub := NewPriceHub()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	update := PriceUpdate{Token: "0xabc", Pool: "0xdef", Price: "1.05", Tick: 487, At: time.Now().Unix()}
	hub.Broadcast(update)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received PriceUpdate
	require.NoError(t, client.ReadJSON(&received))
	assert.Equal(t, update.Token, received.Token)
	assert.Equal(t, update.Price, received.Price)
	assert.Equal(t, update.Tick, received.Tick)
}

func TestPriceHubDropsDeadConnections(t *testing.T) {
	hub := NewPriceHub()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	client.Close()

	// Broadcasts eventually notice the dead peer and drop it.
	assert.Eventually(t, func() bool {
		hub.Broadcast(PriceUpdate{Token: "0xabc"})
		return hub.SubscriberCount() == 0
	}, 5*time.Second, 100*time.Millisecond)
}
