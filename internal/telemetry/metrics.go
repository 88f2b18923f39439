// Package telemetry holds the OpenTelemetry instruments recorded by the game
// service. Instruments come from the global meter provider; NewProvider
// installs an SDK provider that exports them, otherwise they record nothing.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wricardo/mcp-training/busjam/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics records session, tap and outcome counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsCreated metric.Int64Counter
	taps            metric.Int64Counter
	ticks           metric.Int64Counter
	outcomes        metric.Int64Counter
	activeSessions  metric.Int64ObservableGauge
}

// New creates the instruments. activeSessions, when non-nil, is polled for the
// busjam.sessions.active gauge.
func New(activeSessions func() int) (*Metrics, error) {
	return NewWithMeter(meter(), activeSessions)
}

// NewWithMeter creates the instruments on m.
func NewWithMeter(m metric.Meter, activeSessions func() int) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)

	mt.sessionsCreated, err = m.Int64Counter(
		"busjam.sessions.created",
		metric.WithDescription("Sessions created"),
	)
	if err != nil {
		return nil, err
	}

	mt.taps, err = m.Int64Counter(
		"busjam.taps",
		metric.WithDescription("Taps resolved, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	mt.ticks, err = m.Int64Counter(
		"busjam.clock.seconds",
		metric.WithDescription("Level clock seconds applied"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mt.outcomes, err = m.Int64Counter(
		"busjam.levels.ended",
		metric.WithDescription("Levels that reached a terminal phase"),
	)
	if err != nil {
		return nil, err
	}

	if activeSessions != nil {
		mt.activeSessions, err = m.Int64ObservableGauge(
			"busjam.sessions.active",
			metric.WithDescription("Sessions held in memory"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(activeSessions()))
				return nil
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	return &mt, nil
}

// SessionCreated counts a new session for levelID.
func (m *Metrics) SessionCreated(ctx context.Context, levelID string) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("level", levelID)))
}

// Tap counts one resolved tap.
func (m *Metrics) Tap(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.taps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Tick counts clock seconds applied to a session.
func (m *Metrics) Tick(ctx context.Context, seconds int) {
	if m == nil || seconds <= 0 {
		return
	}
	m.ticks.Add(ctx, int64(seconds))
}

// LevelEnded counts a terminal phase for levelID.
func (m *Metrics) LevelEnded(ctx context.Context, levelID, phase string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", levelID),
		attribute.String("phase", phase),
	))
}
