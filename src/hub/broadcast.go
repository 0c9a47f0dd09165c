package hub

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/chat/src/metrics"
	"github.com/orchestra-mcp/chat/src/types"
)

// Report describes the outcome of one broadcast.
type Report struct {
	Recipients int      `json:"recipients"`
	Delivered  int      `json:"delivered"`
	Failed     int      `json:"failed"`
	Offline    []string `json:"offline,omitempty"`
}

// Broadcaster fans a server event out to every live connection of a set
// of users. Delivery is best effort: nothing is retried or queued for
// users that are offline.
type Broadcaster struct {
	registry *Registry
	metrics  *metrics.Collectors
	logger   zerolog.Logger
}

// NewBroadcaster creates a broadcaster over the registry.
func NewBroadcaster(registry *Registry, m *metrics.Collectors, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  m,
		logger:   logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Broadcast encodes ev once and queues it on each recipient's connections.
func (b *Broadcaster) Broadcast(recipients []string, ev types.ServerEvent) Report {
	recipients = dedupe(recipients)
	report := Report{Recipients: len(recipients)}
	if len(recipients) == 0 {
		return report
	}

	frame, err := ev.Encode()
	if err != nil {
		b.logger.Error().Err(err).Str("event", ev.Type).Msg("failed to encode event")
		report.Failed = len(recipients)
		return report
	}

	for _, userID := range recipients {
		clients := b.registry.Connections(userID)
		if len(clients) == 0 {
			report.Offline = append(report.Offline, userID)
			continue
		}
		for _, c := range clients {
			if b.deliver(c, ev.Type, frame) {
				report.Delivered++
			} else {
				report.Failed++
			}
		}
	}

	if len(report.Offline) > 0 {
		b.metrics.UndeliveredUsers.Add(float64(len(report.Offline)))
		b.logger.Debug().
			Str("event", ev.Type).
			Str("conversation_id", ev.ConversationID).
			Strs("user_ids", report.Offline).
			Msg("not delivered (offline)")
	}
	return report
}

// SendTo queues ev on a single connection.
func (b *Broadcaster) SendTo(c *Client, ev types.ServerEvent) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := c.Enqueue(frame); err != nil {
		b.recordFailure(c, ev.Type, err)
		return err
	}
	b.metrics.FramesDelivered.Inc()
	return nil
}

func (b *Broadcaster) deliver(c *Client, event string, frame []byte) bool {
	if err := c.Enqueue(frame); err != nil {
		b.recordFailure(c, event, err)
		return false
	}
	b.metrics.FramesDelivered.Inc()
	return true
}

func (b *Broadcaster) recordFailure(c *Client, event string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, types.ErrClientClosed):
		reason = "closed"
	case errors.Is(err, types.ErrSendBufferFull):
		reason = "buffer_full"
	}
	b.metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	b.logger.Warn().
		Err(err).
		Str("client_id", c.ID).
		Str("user_id", c.User.ID).
		Str("event", event).
		Msg("delivery failed")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
