package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transitrisk/internal/domain"
)

// CauseReasons maps GTFS-Realtime alert causes onto delay reasons.
var CauseReasons = map[gtfs.Alert_Cause]domain.DelayReason{
	gtfs.Alert_UNKNOWN_CAUSE:     domain.ReasonExternal,
	gtfs.Alert_OTHER_CAUSE:       domain.ReasonExternal,
	gtfs.Alert_TECHNICAL_PROBLEM: domain.ReasonTechnicalFailure,
	gtfs.Alert_STRIKE:            domain.ReasonStaffing,
	gtfs.Alert_DEMONSTRATION:     domain.ReasonExternal,
	gtfs.Alert_ACCIDENT:          domain.ReasonAccident,
	gtfs.Alert_HOLIDAY:           domain.ReasonPassengerVolume,
	gtfs.Alert_WEATHER:           domain.ReasonWeather,
	gtfs.Alert_MAINTENANCE:       domain.ReasonTrackMaintenance,
	gtfs.Alert_CONSTRUCTION:      domain.ReasonConstruction,
	gtfs.Alert_POLICE_ACTIVITY:   domain.ReasonExternal,
	gtfs.Alert_MEDICAL_EMERGENCY: domain.ReasonExternal,
}

type GTFSRTOptions struct {
	TripUpdatesURL string
	AlertsURL      string
	TransportType  domain.TransportType
	Threshold      time.Duration
	Client         *http.Client
}

// GTFSRT turns delayed trip updates from a GTFS-Realtime feed into signals.
type GTFSRT struct {
	opts   GTFSRTOptions
	client *http.Client
	logger *slog.Logger
}

func NewGTFSRT(opts GTFSRTOptions, logger *slog.Logger) *GTFSRT {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5 * time.Minute
	}
	return &GTFSRT{
		opts:   opts,
		client: client,
		logger: logger.With("component", "gtfsrt_feed"),
	}
}

func (g *GTFSRT) Name() string { return KindGTFSRT }

func (g *GTFSRT) Fetch(ctx context.Context) ([]domain.DelaySignal, error) {
	feed, err := g.fetchFeed(ctx, g.opts.TripUpdatesURL)
	if err != nil {
		return nil, fmt.Errorf("trip updates: %w", err)
	}

	causes := map[string]domain.DelayReason{}
	if g.opts.AlertsURL != "" {
		if alerts, err := g.fetchFeed(ctx, g.opts.AlertsURL); err != nil {
			g.logger.Warn("failed to fetch alerts", "error", err)
		} else {
			causes = alertCauses(alerts)
		}
	}

	return g.signals(feed, causes), nil
}

func (g *GTFSRT) signals(feed *gtfs.FeedMessage, causes map[string]domain.DelayReason) []domain.DelaySignal {
	var signals []domain.DelaySignal
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		routeID := tu.GetTrip().GetRouteId()
		if routeID == "" {
			continue
		}

		var worst int32
		var stopID string
		for _, stu := range tu.GetStopTimeUpdate() {
			delay := stu.GetArrival().GetDelay()
			if d := stu.GetDeparture().GetDelay(); d > delay {
				delay = d
			}
			if delay > worst {
				worst = delay
				stopID = stu.GetStopId()
			}
		}
		if tu.Delay != nil && tu.GetDelay() > worst {
			worst = tu.GetDelay()
		}

		d := time.Duration(worst) * time.Second
		if d < g.opts.Threshold {
			continue
		}

		reason, ok := causes[routeID]
		if !ok {
			reason = domain.ReasonExternal
		}

		var observed time.Time
		if ts := tu.GetTimestamp(); ts > 0 {
			observed = time.Unix(int64(ts), 0).UTC()
		}

		signals = append(signals, domain.DelaySignal{
			TransportType: g.opts.TransportType,
			Route:         routeID,
			Location:      stopID,
			Duration:      domain.SecondsOf(d),
			Reason:        reason,
			Severity:      domain.SeverityForDuration(d),
			Description:   fmt.Sprintf("trip %s running %d min late", tu.GetTrip().GetTripId(), worst/60),
			ObservedAt:    observed,
		})
	}
	return signals
}

// alertCauses returns the cause of the first alert naming each route.
func alertCauses(feed *gtfs.FeedMessage) map[string]domain.DelayReason {
	causes := make(map[string]domain.DelayReason)
	for _, entity := range feed.GetEntity() {
		alert := entity.GetAlert()
		if alert == nil {
			continue
		}
		reason, ok := CauseReasons[alert.GetCause()]
		if !ok {
			reason = domain.ReasonExternal
		}
		for _, ie := range alert.GetInformedEntity() {
			if id := ie.GetRouteId(); id != "" {
				if _, seen := causes[id]; !seen {
					causes[id] = reason
				}
			}
		}
	}
	return causes
}

func (g *GTFSRT) fetchFeed(ctx context.Context, url string) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}
	return feed, nil
}
