package encounter

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// Options configures a World. Zero values select the defaults.
type Options struct {
	Tuning *Tuning
	Collaborators
	// Cache may be shared between worlds; when nil one is built around Loader.
	Cache     *ResourceCache
	Loader    ArchetypeLoader
	Archetype string
	Logger    *zerolog.Logger
	Rand      *rand.Rand
	Meter     metric.Meter
	// PlayerStart is where the pilot spawns.
	PlayerStart Vec3
}

// Snapshot is a read-only summary of the world for HUD and persistence.
type Snapshot struct {
	PlayerHealth    int
	PlayerMaxHealth int
	PlayerSpeed     float64
	LiveEnemies     int
	PendingSpawns   int
	EnemyLasers     int
	PlayerLasers    int
	Combo           int
	BestCombo       int
	Planets         []PlanetSnapshot
	Over            bool
}

// PlanetSnapshot summarizes one planet.
type PlanetSnapshot struct {
	ID        EntityID
	Pos       Vec3
	Radius    float64
	Health    int
	MaxHealth int
	State     string
	Active    bool
}

// World is the whole encounter simulation for one pilot.
type World struct {
	tuning  Tuning
	col     Collaborators
	log     zerolog.Logger
	reg     *Registry
	cache   *ResourceCache
	player  *Player
	wave    *WaveController
	combat  *Combat
	manager *Manager

	lastStep time.Time
	over     bool
}

// NewWorld validates the tuning and builds a world with its initial planets.
func NewWorld(opts Options) (*World, error) {
	t := DefaultTuning()
	if opts.Tuning != nil {
		t = *opts.Tuning
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "encounter").Logger()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cache := opts.Cache
	if cache == nil {
		loader := opts.Loader
		if loader == nil {
			loader = BuiltinLoader()
		}
		cache = NewResourceCache(loader)
	}
	archetype := opts.Archetype
	if archetype == "" {
		archetype = DefaultArchetype
	}

	w := &World{
		tuning: t,
		col:    opts.Collaborators.withDefaults(),
		log:    log,
		reg:    NewRegistry(),
		cache:  cache,
	}
	m := newMeters(opts.Meter)
	w.player = newPlayer(w.reg, &w.tuning, opts.PlayerStart)
	w.wave = newWaveController(w.tuning, w.reg, cache, w.col, log, rng, m, archetype)
	w.combat = newCombat(&w.tuning, w.reg, w.wave, w.col, log, m)
	w.manager = &Manager{
		tuning:  &w.tuning,
		reg:     w.reg,
		wave:    w.wave,
		combat:  w.combat,
		col:     w.col,
		log:     log,
		rng:     rng,
		metrics: m,
	}
	for i := 0; i < t.InitialPlanets; i++ {
		w.manager.SpawnPlanet(opts.PlayerStart)
	}
	w.col.HUD.UpdateHealthIndicator(w.player.ID, w.player.HealthFraction())
	log.Info().
		Str("archetype", archetype).
		Int("planets", len(w.manager.planets)).
		Int("enemy_cap", t.EnemyCap).
		Msg("world ready")
	return w, nil
}

// Step runs one tick: pilot flight and fire, player lasers, then the
// encounter manager. After game over it does nothing.
func (w *World) Step(now time.Time, in Input) Events {
	if w.over {
		return nil
	}
	dt := w.delta(now)
	t := &w.tuning
	p := w.player

	p.steer(in, dt, t)
	if in.Fire {
		p.fire(now, t, w.col.Renderer, w.col.Audio)
	}
	p.Lasers = stepLasers(p.Lasers, now, dt, w.col.Renderer)
	p.Lasers = w.combat.ResolvePlayerLasers(now, p.Lasers, w.col.Renderer)

	ev := w.manager.Tick(now, dt, p)

	if ev.Has(EventGameOver) {
		w.over = true
	} else if ev.Has(EventPlayerDestroyed) {
		w.over = true
		ev = append(ev, Event{Kind: EventGameOver, At: now})
	}
	if w.over {
		w.col.Audio.StopLoop(SoundDogfight)
		w.log.Info().Msg("game over")
	}
	return ev
}

func (w *World) delta(now time.Time) float64 {
	prev := w.lastStep
	w.lastStep = now
	if prev.IsZero() {
		return 1.0 / 60
	}
	d := now.Sub(prev)
	if d < 0 {
		return 0
	}
	if d > w.tuning.MaxStep {
		d = w.tuning.MaxStep
	}
	return d.Seconds()
}

// Player returns the pilot's ship.
func (w *World) Player() *Player { return w.player }

// Manager returns the planet encounter manager.
func (w *World) Manager() *Manager { return w.manager }

// Wave returns the wave controller.
func (w *World) Wave() *WaveController { return w.wave }

// Registry returns the entity registry.
func (w *World) Registry() *Registry { return w.reg }

// Combat returns the combat resolver.
func (w *World) Combat() *Combat { return w.combat }

// Over reports whether the run has ended.
func (w *World) Over() bool { return w.over }

// Close removes the remaining enemies, cancels spawns still loading and
// releases every instance the world holds.
func (w *World) Close() {
	w.wave.Close()
}

// Snapshot summarizes the world at now.
func (w *World) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		PlayerHealth:    w.player.Health,
		PlayerMaxHealth: w.player.MaxHealth,
		PlayerSpeed:     w.player.Speed,
		LiveEnemies:     w.wave.Live(),
		PendingSpawns:   w.wave.Pending(),
		EnemyLasers:     len(w.wave.lasers),
		PlayerLasers:    len(w.player.Lasers),
		Combo:           w.combat.combo.Count(now),
		BestCombo:       w.combat.combo.Best(),
		Over:            w.over,
	}
	for _, p := range w.manager.planets {
		s.Planets = append(s.Planets, PlanetSnapshot{
			ID:        p.ID,
			Pos:       p.Pos,
			Radius:    p.Radius,
			Health:    p.Health,
			MaxHealth: p.MaxHealth,
			State:     p.State.Name(),
			Active:    p == w.manager.active,
		})
	}
	return s
}
