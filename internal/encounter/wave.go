package encounter

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Enemy is one live attacker.
type Enemy struct {
	*Body
	Handle          Handle
	Archetype       string
	Orientation     Quat
	Behavior        Behavior
	SpeedMultiplier float64
	TurnRate        float64
	LastShot        time.Time

	instance *Instance
}

// Forward is the enemy's nose direction.
func (e *Enemy) Forward() Vec3 { return forwardOf(e.Orientation) }

type waveTarget struct {
	planet EntityID
	center Vec3
	radius float64
}

type pendingSpawn struct {
	future     *Pending
	cancel     context.CancelFunc
	generation uint64
	center     Vec3
	radius     float64
}

// WaveController owns the live enemies of the current wave and their lasers.
// Every method must be called from the simulation goroutine.
type WaveController struct {
	tuning    Tuning
	reg       *Registry
	cache     *ResourceCache
	col       Collaborators
	log       zerolog.Logger
	rng       *rand.Rand
	metrics   *meters
	archetype string

	target     *waveTarget
	enemies    []*Enemy
	lasers     []*Laser
	pending    []pendingSpawn
	generation uint64
	admitted   int
}

func newWaveController(t Tuning, reg *Registry, cache *ResourceCache, col Collaborators,
	log zerolog.Logger, rng *rand.Rand, m *meters, archetype string) *WaveController {
	return &WaveController{
		tuning:    t,
		reg:       reg,
		cache:     cache,
		col:       col,
		log:       log,
		rng:       rng,
		metrics:   m,
		archetype: archetype,
	}
}

// Live is the number of admitted enemies.
func (w *WaveController) Live() int { return len(w.enemies) }

// Pending is the number of spawns of the current wave still loading.
func (w *WaveController) Pending() int {
	n := 0
	for _, p := range w.pending {
		if p.generation == w.generation {
			n++
		}
	}
	return n
}

// Enemies returns the live enemies. The slice must not be modified.
func (w *WaveController) Enemies() []*Enemy { return w.enemies }

// Lasers returns the enemy lasers in flight. The slice must not be modified.
func (w *WaveController) Lasers() []*Laser { return w.lasers }

// Admitted is the number of enemies admitted to the current wave so far,
// including those already killed.
func (w *WaveController) Admitted() int { return w.admitted }

// HasTarget reports whether the wave is still tied to a planet.
func (w *WaveController) HasTarget() bool { return w.target != nil }

// SpawnWave requests up to count enemies around the planet. Only
// min(count, cap-live) are requested; at the cap nothing is spawned and a
// diagnostic is logged. Cached archetypes are admitted before it returns.
func (w *WaveController) SpawnWave(now time.Time, count int, planet EntityID, center Vec3, radius float64) int {
	live := len(w.enemies)
	if live >= w.tuning.EnemyCap {
		w.log.Warn().
			Int("live", live).
			Int("cap", w.tuning.EnemyCap).
			Int("requested", count).
			Msg("enemy cap reached, wave spawn skipped")
		return 0
	}
	w.target = &waveTarget{planet: planet, center: center, radius: radius}
	toSpawn := min(count, w.tuning.EnemyCap-live)
	for i := 0; i < toSpawn; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.tuning.LoadTimeout)
		w.pending = append(w.pending, pendingSpawn{
			future:     w.cache.Acquire(ctx, w.archetype),
			cancel:     cancel,
			generation: w.generation,
			center:     center,
			radius:     radius,
		})
	}
	inc(w.metrics.wavesStarted, attribute.Int("requested", count), attribute.Int("spawned", toSpawn))
	w.admitReady(now)
	return toSpawn
}

// admitReady drains completed futures. The cap is checked again on every
// completion because several waves may have been requested before any of
// them resolved.
func (w *WaveController) admitReady(now time.Time) {
	kept := w.pending[:0]
	for _, p := range w.pending {
		inst, ready, err := p.future.Poll()
		if !ready {
			kept = append(kept, p)
			continue
		}
		p.cancel()
		switch {
		case err != nil:
			w.log.Error().Err(err).Str("archetype", w.archetype).Msg("enemy load failed")
			inc(w.metrics.spawnsFailed)
		case p.generation != w.generation:
			inst.Release()
			inc(w.metrics.spawnsDiscarded, attribute.String("reason", "stale"))
		case len(w.enemies) >= w.tuning.EnemyCap:
			inst.Release()
			w.log.Warn().
				Int("live", len(w.enemies)).
				Int("cap", w.tuning.EnemyCap).
				Msg("async spawn discarded at enemy cap")
			inc(w.metrics.spawnsDiscarded, attribute.String("reason", "cap"))
		default:
			w.admit(now, inst, p.center, p.radius)
		}
	}
	for i := len(kept); i < len(w.pending); i++ {
		w.pending[i] = pendingSpawn{}
	}
	w.pending = kept
}

func (w *WaveController) admit(now time.Time, inst *Instance, center Vec3, radius float64) {
	t := &w.tuning
	a := inst.Archetype

	angle := w.rng.Float64() * 2 * math.Pi
	dist := radius + t.SafetyMargin + t.SpawnRingOffset + (w.rng.Float64()-0.5)*t.SpawnJitter
	pos := ringPoint(center, dist, angle)
	pos[1] += (w.rng.Float64() - 0.5) * t.SpawnJitter

	out, ok := safeNormalize(pos.Sub(center))
	if !ok {
		out = ForwardAxis
	}
	orient := lookRotation(out)

	kinds := a.Behaviors
	if len(kinds) == 0 {
		kinds = AllBehaviors
	}
	kind := kinds[w.rng.Intn(len(kinds))]

	body := w.reg.Register(TeamEnemy, pos, a.HalfExtents, a.Health)
	e := &Enemy{
		Body:            body,
		Archetype:       a.Name,
		Orientation:     orient,
		Behavior:        newBehavior(kind, w.rng, center, radius, t),
		SpeedMultiplier: randRange(w.rng, t.SpeedVarianceMin, t.SpeedVarianceMax) * a.SpeedScale,
		TurnRate:        t.EnemyTurnRate * randRange(w.rng, 0.8, 1.2),
		instance:        inst,
	}
	e.Handle = w.col.Renderer.SpawnRenderable(KindEnemy, pos, orient)
	w.enemies = append(w.enemies, e)
	w.admitted++
	inc(w.metrics.spawnsAdmitted, attribute.String("behavior", kind.String()))
	w.log.Debug().
		Uint64("enemy", uint64(e.ID)).
		Str("behavior", kind.String()).
		Int("live", len(w.enemies)).
		Msg("enemy admitted")
}

// Tick admits finished spawns, flies every enemy, lets them fire and moves
// their lasers.
func (w *WaveController) Tick(now time.Time, dt float64, player Vec3) {
	w.admitReady(now)
	for _, e := range w.enemies {
		w.fly(e, player, dt)
		w.checkFiring(e, now, player)
	}
	w.UpdateProjectiles(now, dt)
}

func (w *WaveController) fly(e *Enemy, player Vec3, dt float64) {
	t := &w.tuning
	turn := turnFraction(e.TurnRate, dt)

	goal := w.steerTarget(e, player, dt)
	if dir, ok := safeNormalize(goal.Sub(e.Pos)); ok {
		e.Orientation = slerpShortest(e.Orientation, lookRotation(dir), turn)
	}
	move := e.Forward()

	if tg := w.target; tg != nil {
		off := e.Pos.Sub(tg.center)
		d := off.Len()
		safe := tg.radius + t.SafetyMargin
		switch {
		case d < tg.radius:
			out, ok := safeNormalize(off)
			if !ok {
				out = upAxis
			}
			e.Pos = tg.center.Add(out.Mul(safe))
		case d < safe:
			away := off.Mul(1 / d)
			tangent := tangentAround(off)
			if tangent.Dot(move) < 0 {
				tangent = tangent.Mul(-1)
			}
			s := (safe - d) / t.SafetyMargin
			if blended, ok := safeNormalize(tangent.Mul(1 - s).Add(away.Mul(s))); ok {
				move = blended
				e.Orientation = slerpShortest(e.Orientation, lookRotation(move), turn)
			}
		}
	}

	e.Pos = e.Pos.Add(move.Mul(t.EnemySpeed * e.SpeedMultiplier * dt))
	w.col.Renderer.MoveRenderable(e.Handle, e.Pos, e.Orientation)
}

func slerpShortest(from, to Quat, amount float64) Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, amount).Normalize()
}

// checkFiring prefers the planet: an enemy facing the planet within range
// shoots it, otherwise one facing the player within range shoots the player.
func (w *WaveController) checkFiring(e *Enemy, now time.Time, player Vec3) {
	t := &w.tuning
	fwd := e.Forward()

	if tg := w.target; tg != nil {
		toPlanet := tg.center.Sub(e.Pos)
		surface := toPlanet.Len() - tg.radius

		if ap, ok := e.Behavior.(*AttackPlanet); ok && surface < t.FireRange && now.Sub(ap.LastShot) >= t.AttackFireCooldown {
			if dir, ok := safeNormalize(toPlanet); ok {
				w.emitLaser(e, dir, now, true)
				ap.LastShot = now
				return
			}
		}
		if surface < t.FireRange && angleBetween(fwd, toPlanet) < t.FireAngle && w.cooledDown(e, now) {
			w.FireLaser(e, now, true)
			return
		}
	}

	toPlayer := player.Sub(e.Pos)
	if toPlayer.Len() < t.FireRange && angleBetween(fwd, toPlayer) < t.FireAngle && w.cooledDown(e, now) {
		w.FireLaser(e, now, false)
	}
}

func (w *WaveController) cooledDown(e *Enemy, now time.Time) bool {
	return now.Sub(e.LastShot) >= w.tuning.FireCooldown
}

// FireLaser shoots along the enemy's rendered forward direction and resets
// its cooldown. A degenerate or non-finite direction skips the shot.
func (w *WaveController) FireLaser(e *Enemy, now time.Time, targetingPlanet bool) bool {
	dir, ok := safeNormalize(w.col.Renderer.ForwardDirection(e.Handle))
	if !ok {
		w.log.Debug().Uint64("enemy", uint64(e.ID)).Msg("fire skipped, degenerate forward direction")
		return false
	}
	w.emitLaser(e, dir, now, targetingPlanet)
	e.LastShot = now
	return true
}

func (w *WaveController) emitLaser(e *Enemy, dir Vec3, now time.Time, targetingPlanet bool) {
	t := &w.tuning
	dmg := t.LaserPlayerDamage
	if targetingPlanet {
		dmg = t.LaserPlanetDamage
	}
	l := &Laser{
		Owner:           OwnerEnemy,
		ShooterID:       e.ID,
		Pos:             e.Pos,
		Origin:          e.Pos,
		Vel:             dir.Mul(t.LaserSpeed),
		SpawnTime:       now,
		TargetingPlanet: targetingPlanet,
		Damage:          dmg,
		halfExtent:      t.LaserHalfExtent,
		maxRange:        t.LaserRange,
		maxLifetime:     t.LaserLifetime,
	}
	l.Handle = w.col.Renderer.SpawnRenderable(KindEnemyLaser, l.Pos, lookRotation(dir))
	w.lasers = append(w.lasers, l)
	w.col.Audio.PlayOneShot(SoundEnemyFire)
}

// UpdateProjectiles advances enemy lasers and removes those past their range
// or lifetime.
func (w *WaveController) UpdateProjectiles(now time.Time, dt float64) {
	w.lasers = stepLasers(w.lasers, now, dt, w.col.Renderer)
}

func (w *WaveController) removeLaser(i int) {
	w.col.Renderer.RemoveRenderable(w.lasers[i].Handle)
	w.lasers = removeLaserAt(w.lasers, i)
}

// RemoveEnemy disposes of one enemy. It reports false for unknown IDs.
func (w *WaveController) RemoveEnemy(id EntityID) bool {
	for i, e := range w.enemies {
		if e.ID != id {
			continue
		}
		w.dispose(e)
		last := len(w.enemies) - 1
		w.enemies[i] = w.enemies[last]
		w.enemies[last] = nil
		w.enemies = w.enemies[:last]
		return true
	}
	return false
}

func (w *WaveController) dispose(e *Enemy) {
	w.col.Renderer.RemoveRenderable(e.Handle)
	w.reg.Remove(e.ID)
	e.instance.Release()
}

// DetachTarget leaves the enemies alive but without a planet; they all
// pursue the player from then on.
func (w *WaveController) DetachTarget() {
	w.target = nil
}

// Drain removes every enemy and laser and orphans in-flight spawns, which
// discard themselves when they complete. It returns the number of enemies
// removed.
func (w *WaveController) Drain() int {
	n := len(w.enemies)
	for _, e := range w.enemies {
		w.dispose(e)
	}
	clear(w.enemies)
	w.enemies = w.enemies[:0]
	for _, l := range w.lasers {
		w.col.Renderer.RemoveRenderable(l.Handle)
	}
	clear(w.lasers)
	w.lasers = w.lasers[:0]
	w.generation++
	w.admitted = 0
	w.target = nil
	return n
}

// Close drains the wave and gives up on every in-flight spawn. Loads are
// cancelled and any instance they still produce is released on arrival.
func (w *WaveController) Close() {
	w.Drain()
	for i, p := range w.pending {
		p.cancel()
		p.future.Discard()
		w.pending[i] = pendingSpawn{}
	}
	w.pending = w.pending[:0]
}

// nearestEnemy returns the distance from p to the closest live enemy.
func (w *WaveController) nearestEnemy(p Vec3) (float64, bool) {
	best := math.Inf(1)
	for _, e := range w.enemies {
		if d := e.Pos.Sub(p).Len(); d < best {
			best = d
		}
	}
	return best, len(w.enemies) > 0
}
