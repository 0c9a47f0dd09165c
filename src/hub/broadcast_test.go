package hub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

func newTestBroadcaster() (*Broadcaster, *Registry, *metrics.Collectors) {
	r := NewRegistry()
	m := metrics.New()
	return NewBroadcaster(r, m, zerolog.Nop()), r, m
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case frame := <-c.send:
			out = append(out, frame)
		default:
			return out
		}
	}
}

func TestBroadcastPartialDelivery(t *testing.T) {
	b, r, m := newTestBroadcaster()
	a1, _ := newTestClient("u-a", 4)
	a2, _ := newTestClient("u-a", 4)
	c1, _ := newTestClient("u-c", 4)
	r.Add(a1)
	r.Add(a2)
	r.Add(c1)

	ev := types.NewMessage("c-1", map[string]any{"id": "m-1"}, time.Now())
	report := b.Broadcast([]string{"u-a", "u-b", "u-c", "u-a"}, ev)

	assert.Equal(t, 3, report.Recipients)
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, []string{"u-b"}, report.Offline)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UndeliveredUsers))

	for _, c := range []*Client{a1, a2, c1} {
		frames := drain(c)
		require.Len(t, frames, 1)
		var got types.ServerEvent
		require.NoError(t, json.Unmarshal(frames[0], &got))
		assert.Equal(t, types.EventNewMessage, got.Type)
		assert.Equal(t, "c-1", got.ConversationID)
		assert.Equal(t, "m-1", got.Data["id"])
	}
}

func TestBroadcastEncodesOnce(t *testing.T) {
	b, r, _ := newTestBroadcaster()
	c1, _ := newTestClient("u-a", 1)
	c2, _ := newTestClient("u-b", 1)
	r.Add(c1)
	r.Add(c2)

	b.Broadcast([]string{"u-a", "u-b"}, types.Pong(time.Now()))
	f1, f2 := drain(c1), drain(c2)
	require.Len(t, f1, 1)
	require.Len(t, f2, 1)
	assert.Same(t, &f1[0][0], &f2[0][0], "every connection shares the encoded frame")
}

func TestBroadcastContinuesPastFailedConnections(t *testing.T) {
	b, r, m := newTestBroadcaster()
	closed, _ := newTestClient("u-a", 4)
	full, _ := newTestClient("u-a", 1)
	healthy, _ := newTestClient("u-b", 4)
	r.Add(closed)
	r.Add(full)
	r.Add(healthy)

	closed.Close()
	require.NoError(t, full.Enqueue([]byte("{}")))

	report := b.Broadcast([]string{"u-a", "u-b"}, types.Pong(time.Now()))
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, report.Offline)
	assert.Len(t, drain(healthy), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeliveryFailures.WithLabelValues("closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeliveryFailures.WithLabelValues("buffer_full")))
}

func TestBroadcastNoRecipients(t *testing.T) {
	b, _, _ := newTestBroadcaster()
	report := b.Broadcast(nil, types.Pong(time.Now()))
	assert.Equal(t, Report{}, report)
}

func TestSendTo(t *testing.T) {
	b, _, _ := newTestBroadcaster()
	c, _ := newTestClient("u-a", 1)

	require.NoError(t, b.SendTo(c, types.Pong(time.Now())))
	assert.ErrorIs(t, b.SendTo(c, types.Pong(time.Now())), types.ErrSendBufferFull)

	c.Close()
	assert.ErrorIs(t, b.SendTo(c, types.Pong(time.Now())), types.ErrClientClosed)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c, conn := newTestClient("u-a", 1)
	c.Close()
	c.Close()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 1, conn.closeCalls)
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestWritePumpPingsAndFlushes(t *testing.T) {
	c, conn := newTestClient("u-a", 4)
	go func() { _ = c.WritePump(5 * time.Millisecond) }()
	defer c.Close()

	require.NoError(t, c.Enqueue([]byte(`{"type":"pong"}`)))
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pings >= 2 && len(conn.written) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriteFailureClosesClient(t *testing.T) {
	c, conn := newTestClient("u-a", 4)
	conn.writeErr = errors.New("broken pipe")

	errCh := make(chan error, 1)
	go func() { errCh <- c.WritePump(0) }()

	require.NoError(t, c.Enqueue([]byte(`{}`)))
	select {
	case err := <-errCh:
		assert.EqualError(t, err, "broken pipe")
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, c.Enqueue([]byte(`{}`)), types.ErrClientClosed)
}
