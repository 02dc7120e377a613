package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeString(t *testing.T) {
	assert.Equal(t, "kit:42", KitScope(42).String())
	assert.Equal(t, "channel:7", ChannelScope(7).String())
}

func TestScopeRef_Scope(t *testing.T) {
	s, ok := ScopeRef{KitID: 42}.Scope()
	require.True(t, ok)
	assert.Equal(t, KitScope(42), s)

	s, ok = ScopeRef{ChannelID: 7}.Scope()
	require.True(t, ok)
	assert.Equal(t, ChannelScope(7), s)

	_, ok = ScopeRef{}.Scope()
	assert.False(t, ok)

	_, ok = ScopeRef{KitID: 1, ChannelID: 2}.Scope()
	assert.False(t, ok, "ambiguous descriptor must be rejected")
}

func TestMessage_DecodesScopeFromFlatPayload(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"kit_id":42,"sender_name":"Alice","subject":"Hi"}`), &msg))

	scope, ok := msg.Scope()
	require.True(t, ok)
	assert.Equal(t, "kit:42", scope.String())
	assert.Equal(t, int64(1), msg.ID)
	assert.Equal(t, "Alice", msg.SenderName)
}

func TestSendMessageRequest_WireShape(t *testing.T) {
	data, err := json.Marshal(SendMessageRequest{ScopeRef: RefOf(ChannelScope(3)), Body: "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel_id":3,"message":"hello"}`, string(data))
}
