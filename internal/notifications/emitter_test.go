package notifications

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_PublishDeliversEnvelopeLocally(t *testing.T) {
	hub := NewHub(&presenceStub{})
	client, err := hub.Register(5, nil)
	require.NoError(t, err)

	emitter := NewEmitter(hub, NewNotifier(nil))
	emitter.Publish(5, EventFriendRequest, map[string]any{"from_user_id": 3})

	select {
	case raw := <-client.Send:
		var env struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, "friend_request", env.Type)
		assert.Equal(t, float64(3), env.Payload["from_user_id"])
	case <-time.After(time.Second):
		t.Fatal("client never received the event")
	}
}

func TestEmitter_UnknownKindIsDropped(t *testing.T) {
	hub := NewHub(&presenceStub{})
	client, err := hub.Register(5, nil)
	require.NoError(t, err)

	emitter := NewEmitter(hub, nil)
	emitter.Publish(5, EventKind("totally_made_up"), nil)

	select {
	case raw := <-client.Send:
		t.Fatalf("unexpected delivery for unknown kind: %s", raw)
	default:
	}
}

func TestEmitter_PublishReachesRedisChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	sub := rdb.Subscribe(t.Context(), UserChannel(11))
	defer func() { _ = sub.Close() }()
	// Wait for the subscription before publishing.
	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	emitter := NewEmitter(nil, NewNotifier(rdb))
	emitter.Publish(11, EventNewMessage, map[string]any{"chat_id": 4, "message_id": 9})

	select {
	case msg := <-sub.Channel():
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, EventNewMessage, env.Type)
	case <-time.After(time.Second):
		t.Fatal("event never reached redis")
	}
}

func TestEmitter_NilCollaboratorsAreSafe(t *testing.T) {
	emitter := NewEmitter(nil, nil)
	assert.NotPanics(t, func() {
		emitter.Publish(1, EventPresenceChange, map[string]any{"status": "away"})
	})
}
