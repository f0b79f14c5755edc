package encounter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "planet-defense/encounter"

type meters struct {
	wavesStarted     metric.Int64Counter
	spawnsAdmitted   metric.Int64Counter
	spawnsDiscarded  metric.Int64Counter
	spawnsFailed     metric.Int64Counter
	enemiesKilled    metric.Int64Counter
	planetsSaved     metric.Int64Counter
	planetsDestroyed metric.Int64Counter
	disengagements   metric.Int64Counter
}

func newMeters(m metric.Meter) *meters {
	if m == nil {
		m = otel.Meter(meterName)
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return noop.Int64Counter{}
		}
		return c
	}
	return &meters{
		wavesStarted:     counter("encounter.waves.started", "Enemy waves requested for a planet"),
		spawnsAdmitted:   counter("encounter.spawns.admitted", "Enemies admitted into a wave"),
		spawnsDiscarded:  counter("encounter.spawns.discarded", "Async spawns discarded at the cap or after teardown"),
		spawnsFailed:     counter("encounter.spawns.failed", "Archetype loads that failed"),
		enemiesKilled:    counter("encounter.enemies.killed", "Enemies destroyed by the player"),
		planetsSaved:     counter("encounter.planets.saved", "Planets cleared of attackers"),
		planetsDestroyed: counter("encounter.planets.destroyed", "Planets lost"),
		disengagements:   counter("encounter.disengagements", "Waves torn down without a win"),
	}
}

func inc(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
