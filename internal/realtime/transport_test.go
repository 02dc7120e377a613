package realtime

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kit-sync/internal/model"
	"kit-sync/internal/socketio"
)

func TestSocketIODialer_EndToEnd(t *testing.T) {
	srv := socketio.NewServer(socketio.ServerOptions{
		Authenticate: func(token string) (socketio.Identity, error) {
			if token != "tok-A" {
				return socketio.Identity{}, errors.New("bad token")
			}
			return socketio.Identity{UserID: 1, Name: "Alice"}, nil
		},
	})
	srv.On(model.EventSendMessage, func(c *socketio.Conn, args []json.RawMessage) {
		var req model.SendMessageRequest
		if err := json.Unmarshal(args[0], &req); err != nil {
			_ = c.Emit(model.EventError, model.ErrorEvent{Message: "Invalid payload"})
			return
		}
		_ = c.Emit(model.EventMessageSent, model.Message{
			ID:         1,
			ScopeRef:   req.ScopeRef,
			SenderID:   c.Identity().UserID,
			SenderName: c.Identity().Name,
			Subject:    req.Subject,
			Body:       req.Body,
			SentAt:     time.Now().UTC(),
		})
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	sink := newRecordingSink()
	client := NewClient(Deps{
		Dialer: NewSocketIODialer(socketio.ClientConfig{
			URL:               ts.URL,
			ReconnectAttempts: 1,
			ReconnectDelay:    10 * time.Millisecond,
			HandshakeTimeout:  time.Second,
		}, nil),
		Sink: sink,
	}, Options{})

	client.Connect("tok-A")
	require.Eventually(t, client.IsConnected, 2*time.Second, 5*time.Millisecond)

	client.SendMessage(model.KitScope(42), OutgoingMessage{Subject: "Hi", Body: "calibration done"})
	require.Eventually(t, func() bool { return sink.messageCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	got := sink.messages[0]
	sink.mu.Unlock()
	assert.Equal(t, model.KitScope(42), got.scope)
	assert.Equal(t, "Alice", got.msg.SenderName)

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.Equal(t, model.StatusDisconnected, sink.lastStatus())
}

func TestSocketIODialer_RejectedTokenEndsDisconnected(t *testing.T) {
	srv := socketio.NewServer(socketio.ServerOptions{
		Authenticate: func(string) (socketio.Identity, error) {
			return socketio.Identity{}, errors.New("bad token")
		},
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	sink := newRecordingSink()
	client := NewClient(Deps{
		Dialer: NewSocketIODialer(socketio.ClientConfig{URL: ts.URL, ReconnectAttempts: 5}, nil),
		Sink:   sink,
	}, Options{})

	client.Connect("expired")
	require.Eventually(t, func() bool {
		return sink.lastStatus() == model.StatusDisconnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, client.IsConnected())
}
