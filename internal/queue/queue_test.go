package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msg := NewMessage(TypeExport, []byte(`{"reason":"manual"}`))
	require.NotEmpty(t, msg.ID)

	require.NoError(t, q.Publish(ctx, msg))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-out:
		require.Equal(t, msg.ID, got.ID)
		require.Equal(t, TypeExport, got.Type)
		require.JSONEq(t, `{"reason":"manual"}`, string(got.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryPublishRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	require.NoError(t, q.Publish(ctx, NewMessage(TypeExport, nil)))

	cancel()
	err := q.Publish(ctx, NewMessage(TypeExport, nil))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMessageEnvelope(t *testing.T) {
	msg := NewMessage(TypeExport, nil)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, msg.ID, decoded.ID)
	require.Equal(t, msg.Type, decoded.Type)
	require.Empty(t, decoded.Body)
}
