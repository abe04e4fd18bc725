package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsCopies(t *testing.T) {
	t.Parallel()

	pub := New()
	payload := []byte(`{"job_id":"j1"}`)
	require.NoError(t, pub.Publish(context.Background(), payload))

	payload[0] = 'X'
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, `{"job_id":"j1"}`, string(msgs[0]))
}
