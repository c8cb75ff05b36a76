package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_backend/internal/domain"
)

func TestWebSocketBroadcastsSpotEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsm := NewWebSocketManager()
	go wsm.Start(ctx)

	r := gin.New()
	r.GET("/ws", NewWebSocketHandler(wsm).HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return wsm.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	wsm.Publish(domain.SpotEvent{SpotID: "s1", State: domain.SpotOccupied, At: at})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got domain.SpotEvent
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "s1", got.SpotID)
	assert.Equal(t, domain.SpotOccupied, got.State)

	cancel()
	require.Eventually(t, func() bool { return wsm.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	wsm := NewWebSocketManager()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			wsm.Publish(domain.SpotEvent{SpotID: "s1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running manager")
	}
}
