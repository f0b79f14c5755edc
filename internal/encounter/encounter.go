package encounter

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Manager runs the per-planet encounter state machine: it engages planets
// the player approaches, declares them saved or destroyed, tears waves down
// when the player flees, and keeps a few planets around the player.
type Manager struct {
	tuning  *Tuning
	reg     *Registry
	wave    *WaveController
	combat  *Combat
	col     Collaborators
	log     zerolog.Logger
	rng     *rand.Rand
	metrics *meters

	planets []*Planet
	active  *Planet

	gameOverAt   time.Time
	gameOverSent bool
}

// Planets returns the current planets. The slice must not be modified.
func (m *Manager) Planets() []*Planet { return m.planets }

// Active returns the planet whose wave is in progress, or nil.
func (m *Manager) Active() *Planet { return m.active }

// Planet looks a planet up by ID.
func (m *Manager) Planet(id EntityID) *Planet {
	for _, p := range m.planets {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// spawning is true while the active planet's wave is still being requested.
func (m *Manager) spawning(now time.Time) bool {
	if m.active == nil {
		return false
	}
	a, ok := m.active.State.(Approaching)
	return ok && now.Before(a.LockUntil)
}

// Tick advances the wave and evaluates every planet against the player, in
// the fixed order destruction, removal, engagement, collision, win, flee.
func (m *Manager) Tick(now time.Time, dt float64, player *Player) Events {
	var ev Events
	t := m.tuning

	if m.active != nil {
		if a, ok := m.active.State.(Approaching); ok && !now.Before(a.LockUntil) {
			m.active.State = UnderAttack{Since: now}
		}
	}

	m.wave.Tick(now, dt, player.Pos)
	m.combat.ResolveEnemyLasers(now, m.planets, player)
	m.reg.ApplyRumble(now, t.RumbleIntensity, m.rng)

	var removals []*Planet
	nearest := math.Inf(1)
	for _, p := range slices.Clone(m.planets) {
		if !p.Alive() {
			ev = m.destroy(now, p, ev)
			continue
		}
		dist := p.Pos.Sub(player.Pos).Len()
		nearest = math.Min(nearest, dist)

		if dist > t.RemovalDistance {
			removals = append(removals, p)
			continue
		}

		if dist < t.EngageRadius && p.Dormant() && !m.spawning(now) {
			ev = m.engage(now, p, ev)
		}

		if dist <= p.Radius && now.Sub(p.lastCollision) >= t.PlanetCollisionCD {
			p.lastCollision = now
			m.combat.DamagePlayer(now, player, t.PlanetCollisionDamage)
			m.col.HUD.Notify("Collision! Pull away from the planet", SeverityWarning)
			ev = append(ev, Event{Kind: EventPlanetCollision, At: now, Planet: p.ID, Damage: t.PlanetCollisionDamage})
		}

		if m.active != p {
			continue
		}
		if _, ok := p.State.(UnderAttack); ok && m.wave.Live() == 0 && m.wave.Pending() == 0 {
			if m.wave.Admitted() == 0 {
				// Every load failed: nothing was fought, so the planet
				// goes back to dormant and the next approach retries.
				ev = m.disengage(now, p, ReasonLoadFailed, ev)
			} else {
				ev = m.save(now, p, player, ev)
			}
			continue
		}
		if d, ok := m.wave.nearestEnemy(player.Pos); ok && d > t.FleeDistance {
			ev = m.disengage(now, p, ReasonFled, ev)
		}
	}

	for _, p := range removals {
		if m.active == p {
			ev = m.disengage(now, p, ReasonRemoved, ev)
		}
		m.removePlanet(p)
		ev = append(ev, Event{Kind: EventPlanetRemoved, At: now, Planet: p.ID})
	}

	if len(m.planets) < t.MaxPlanets && nearest > t.NewPlanetDistance {
		p := m.SpawnPlanet(player.Pos)
		ev = append(ev, Event{Kind: EventPlanetSpawned, At: now, Planet: p.ID})
	}

	if !m.gameOverAt.IsZero() && !m.gameOverSent && !now.Before(m.gameOverAt) {
		m.gameOverSent = true
		ev = append(ev, Event{Kind: EventGameOver, At: now})
	}

	m.col.HUD.UpdateMiniMap(m.reg.Blips())
	return append(ev, m.combat.drain()...)
}

func (m *Manager) engage(now time.Time, p *Planet, ev Events) Events {
	if m.active != nil && m.active != p {
		ev = m.disengage(now, m.active, ReasonDisplaced, ev)
	}
	m.wave.Drain()

	p.State = Approaching{LockUntil: now.Add(m.tuning.SpawnLockHold)}
	m.active = p
	n := m.wave.SpawnWave(now, m.tuning.WaveSize, p.ID, p.Pos, p.Radius)

	m.col.Audio.PlayLoop(SoundDogfight)
	m.col.Audio.PlayOneShot(SoundAlarm)
	m.col.HUD.Notify("Planet under attack! Destroy all enemies!", SeverityDanger)
	m.log.Info().
		Uint64("planet", uint64(p.ID)).
		Int("requested", m.tuning.WaveSize).
		Int("spawned", n).
		Msg("planet engaged")
	return append(ev, Event{Kind: EventWaveStarted, At: now, Planet: p.ID, Requested: m.tuning.WaveSize, Spawned: n})
}

func (m *Manager) save(now time.Time, p *Planet, player *Player, ev Events) Events {
	t := m.tuning
	p.State = Cleared{At: now}
	m.active = nil
	m.wave.DetachTarget()
	m.col.Audio.StopLoop(SoundDogfight)
	m.col.Audio.PlayOneShot(SoundPlanetSaved)

	player.Heal(t.PlanetSavedHeal)
	m.col.HUD.UpdateHealthIndicator(player.ID, player.HealthFraction())
	m.col.Rewards.GrantXP(t.PlanetSavedXP)
	m.col.Rewards.GrantCurrency(CurrencyCredits, t.PlanetSavedCredits)
	m.col.HUD.Notify(fmt.Sprintf("Planet saved! +%d XP +%d HP", t.PlanetSavedXP, t.PlanetSavedHeal), SeveritySuccess)

	inc(m.metrics.planetsSaved)
	m.log.Info().Uint64("planet", uint64(p.ID)).Msg("planet saved")
	return append(ev, Event{Kind: EventPlanetSaved, At: now, Planet: p.ID, XP: t.PlanetSavedXP})
}

// destroy removes a planet whose health ran out. Its attackers stay and turn
// on the player; game over follows after a short delay.
func (m *Manager) destroy(now time.Time, p *Planet, ev Events) Events {
	p.State = Destroyed{At: now}
	if m.active == p {
		m.active = nil
		m.wave.DetachTarget()
		m.col.Audio.StopLoop(SoundDogfight)
	}
	m.removePlanet(p)
	m.col.HUD.UpdateHealthIndicator(p.ID, 0)
	m.col.HUD.Notify("Planet destroyed!", SeverityDanger)
	m.col.Audio.PlayOneShot(SoundPlanetDestroyed)
	if m.gameOverAt.IsZero() {
		m.gameOverAt = now.Add(m.tuning.GameOverDelay)
	}

	inc(m.metrics.planetsDestroyed)
	m.log.Info().Uint64("planet", uint64(p.ID)).Msg("planet destroyed")
	return append(ev, Event{Kind: EventPlanetDestroyed, At: now, Planet: p.ID})
}

// disengage tears the wave down and makes the planet engageable again
// without clearing it.
func (m *Manager) disengage(now time.Time, p *Planet, reason DisengageReason, ev Events) Events {
	removed := m.wave.Drain()
	p.State = Dormant{}
	if m.active == p {
		m.active = nil
	}
	m.col.Audio.StopLoop(SoundDogfight)
	switch reason {
	case ReasonFled:
		m.col.HUD.Notify("Combat disengaged", SeverityInfo)
	case ReasonLoadFailed:
		m.log.Warn().Uint64("planet", uint64(p.ID)).Msg("no enemy of the wave could be loaded")
	}

	inc(m.metrics.disengagements, attribute.String("reason", string(reason)))
	m.log.Info().
		Uint64("planet", uint64(p.ID)).
		Str("reason", string(reason)).
		Int("removed", removed).
		Msg("wave disengaged")
	return append(ev, Event{Kind: EventDisengaged, At: now, Planet: p.ID, Reason: reason})
}

// SpawnPlanet places a new dormant planet at a random distance from around.
func (m *Manager) SpawnPlanet(around Vec3) *Planet {
	t := m.tuning
	dir := randUnit(m.rng)
	dir[1] *= t.PlanetSpawnFlatten
	dir, ok := safeNormalize(dir)
	if !ok {
		dir = Vec3{1, 0, 0}
	}
	dist := t.PlanetSpawnMin + m.rng.Float64()*t.PlanetSpawnBand
	radius := randRange(m.rng, t.PlanetRadiusMin, t.PlanetRadiusMax)
	return m.AddPlanet(around.Add(dir.Mul(dist)), radius, t.PlanetHealth)
}

// AddPlanet places a dormant planet at pos.
func (m *Manager) AddPlanet(pos Vec3, radius float64, health int) *Planet {
	p := &Planet{
		Body:   m.reg.Register(TeamPlanet, pos, Vec3{radius, radius, radius}, health),
		Radius: radius,
		State:  Dormant{},
	}
	p.Handle = m.col.Renderer.SpawnRenderable(KindPlanet, pos, mgl64.QuatIdent())
	m.planets = append(m.planets, p)
	m.log.Debug().
		Uint64("planet", uint64(p.ID)).
		Float64("radius", radius).
		Msg("planet spawned")
	return p
}

func (m *Manager) removePlanet(p *Planet) {
	i := slices.Index(m.planets, p)
	if i < 0 {
		return
	}
	m.planets = slices.Delete(m.planets, i, i+1)
	m.col.Renderer.RemoveRenderable(p.Handle)
	m.reg.Remove(p.ID)
}
