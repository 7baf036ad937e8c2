package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"transitrisk/internal/domain"
)

// NATS buffers JSON encoded DelaySignal messages received on a subject until the next Fetch.
type NATS struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	limit  int
	logger *slog.Logger

	mu      sync.Mutex
	pending []domain.DelaySignal
	dropped int
}

func NewNATS(url, subject string, limit int, logger *slog.Logger) (*NATS, error) {
	if limit <= 0 {
		limit = 1000
	}
	n := &NATS{limit: limit, logger: logger.With("component", "nats_feed")}

	nc, err := nats.Connect(url,
		nats.Name("transitrisk"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			n.logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		n.handle(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	n.nc = nc
	n.sub = sub
	return n, nil
}

func (n *NATS) Name() string { return KindNATS }

func (n *NATS) handle(data []byte) {
	var sig domain.DelaySignal
	if err := json.Unmarshal(data, &sig); err != nil {
		n.logger.Debug("discarding malformed signal", "error", err)
		return
	}
	if sig.Route == "" || sig.Duration < 0 {
		n.logger.Debug("discarding incomplete signal", "route", sig.Route)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pending) >= n.limit {
		n.dropped++
		return
	}
	n.pending = append(n.pending, sig)
}

func (n *NATS) Fetch(_ context.Context) ([]domain.DelaySignal, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.pending
	n.pending = nil
	if n.dropped > 0 {
		n.logger.Warn("signal buffer overflowed", "dropped", n.dropped, "limit", n.limit)
		n.dropped = 0
	}
	return out, nil
}

func (n *NATS) Close() {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	if n.nc != nil {
		_ = n.nc.Drain()
		n.nc.Close()
	}
}
