package ws

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicehub/domain/event"
)

func TestConsumeQueuesUntilBufferFull(t *testing.T) {
	c := newClient("c1", nil, slog.Default())
	ctx := context.Background()

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Consume(ctx, event.New("message", "s1", nil)))
	}

	err := c.Consume(ctx, event.New("message", "s1", nil))
	assert.ErrorContains(t, err, "send buffer full")
}

func TestConsumeAfterCloseFails(t *testing.T) {
	c := newClient("c1", nil, slog.Default())
	c.close()
	c.close() // idempotent

	err := c.Consume(context.Background(), event.New("message", "s1", nil))
	assert.ErrorContains(t, err, "closed")
}
