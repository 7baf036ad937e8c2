package feed

import (
	"context"

	"transitrisk/internal/domain"
)

// Source yields the delay signals observed since the previous call.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.DelaySignal, error)
}

const (
	KindSimulated = "simulated"
	KindGTFSRT    = "gtfsrt"
	KindNATS      = "nats"
)
