package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresEvents(t *testing.T) {
	t.Parallel()

	pub := New(0, nil)
	id1, err := pub.Publish(context.Background(), "visits", map[string]string{"ip": "1.2.3.4"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "visits", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	require.JSONEq(t, `{"ip":"1.2.3.4"}`, string(events[0].Data))
	require.JSONEq(t, `"payload"`, string(events[1].Data))

	events[0].Topic = "modified"
	require.Equal(t, "visits", pub.Events()[0].Topic, "Events must return a copy")
}

func TestPublisherCapacity(t *testing.T) {
	t.Parallel()

	pub := New(2, nil)
	for range 5 {
		_, err := pub.Publish(context.Background(), "visits", 1)
		require.NoError(t, err)
	}
	events := pub.Events()
	require.Len(t, events, 2)
	require.Equal(t, "memory-4", events[0].ID)
	require.Equal(t, "memory-5", events[1].ID)
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	_, err := New(0, nil).Publish(context.Background(), "visits", func() {})
	require.Error(t, err)
}
