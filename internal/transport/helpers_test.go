package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/queue"
)

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(context.Background(), medium.NewMemory())
	require.NoError(t, err)
	return q
}
