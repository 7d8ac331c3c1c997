package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"ecomchain/native/payment"
)

func TestEventStreamFiltersByType(t *testing.T) {
	env := newRPCEnv(t, ServerConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/events?type=" + payment.EventTypePaymentCreated
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	received := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			received <- data
		}
		close(received)
	}()

	// The subscription is registered after the handshake, so keep emitting
	// fresh payments until one reaches the stream.
	var data []byte
	for i := 1; data == nil; i++ {
		owner := [20]byte{0x40, byte(i)}
		_, resp := env.call(env.token(owner), "commerce_createPayment", map[string]string{"amount": "10"})
		require.Nil(t, resp.Error)
		select {
		case msg, ok := <-received:
			require.True(t, ok, "stream closed before an event arrived")
			data = msg
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}

	var evt eventJSON
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, payment.EventTypePaymentCreated, evt.Type)
	require.NotZero(t, evt.Sequence)
}
