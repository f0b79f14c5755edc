package encounter

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	NopRenderer
	spawned map[RenderKind]int
	removed int
	forward func(h Handle) Vec3
}

func (r *recordingRenderer) SpawnRenderable(kind RenderKind, pos Vec3, orient Quat) Handle {
	if r.spawned == nil {
		r.spawned = make(map[RenderKind]int)
	}
	r.spawned[kind]++
	return r.NopRenderer.SpawnRenderable(kind, pos, orient)
}

func (r *recordingRenderer) RemoveRenderable(h Handle) {
	r.removed++
	r.NopRenderer.RemoveRenderable(h)
}

func (r *recordingRenderer) ForwardDirection(h Handle) Vec3 {
	if r.forward != nil {
		return r.forward(h)
	}
	return r.NopRenderer.ForwardDirection(h)
}

// live is the number of renderables spawned and not removed.
func (r *recordingRenderer) live() int { return len(r.orients) }

type recordingAudio struct {
	oneShots []string
	loops    map[string]bool
}

func (a *recordingAudio) PlayOneShot(name string) { a.oneShots = append(a.oneShots, name) }

func (a *recordingAudio) PlayLoop(name string) {
	if a.loops == nil {
		a.loops = make(map[string]bool)
	}
	a.loops[name] = true
}

func (a *recordingAudio) StopLoop(name string) { delete(a.loops, name) }

func (a *recordingAudio) played(name string) int {
	n := 0
	for _, s := range a.oneShots {
		if s == name {
			n++
		}
	}
	return n
}

type note struct {
	msg string
	sev Severity
}

type recordingHUD struct {
	notes   []note
	health  map[EntityID]float64
	minimap int
}

func (h *recordingHUD) Notify(msg string, sev Severity) {
	h.notes = append(h.notes, note{msg, sev})
}

func (h *recordingHUD) UpdateHealthIndicator(id EntityID, pct float64) {
	if h.health == nil {
		h.health = make(map[EntityID]float64)
	}
	h.health[id] = pct
}

func (h *recordingHUD) UpdateMiniMap([]Blip) { h.minimap++ }

func (h *recordingHUD) noted(msg string) bool {
	return slices.ContainsFunc(h.notes, func(n note) bool { return n.msg == msg })
}

type recordingRewards struct {
	xp       []int
	currency map[string]int
}

func (r *recordingRewards) GrantXP(amount int) { r.xp = append(r.xp, amount) }

func (r *recordingRewards) GrantCurrency(kind string, amount int) {
	if r.currency == nil {
		r.currency = make(map[string]int)
	}
	r.currency[kind] += amount
}

// staticLoader serves archetypes from memory. A non-nil gate blocks loads
// until it is closed; failures makes the next loads fail.
type staticLoader struct {
	mu         sync.Mutex
	archetypes map[string]*Archetype
	gate       chan struct{}
	failures   int
	calls      int
}

var errLoadFailed = errors.New("load failed")

func (l *staticLoader) LoadArchetype(ctx context.Context, name string) (*Archetype, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gate
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errLoadFailed
	}
	a, ok := l.archetypes[name]
	if !ok {
		return nil, ErrUnknownArchetype
	}
	cp := *a
	return &cp, nil
}

func (l *staticLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func chaseFighter() *Archetype {
	return &Archetype{
		Name:        "fighter",
		Health:      80,
		HalfExtents: Vec3{4, 2, 5},
		SpeedScale:  1,
		Behaviors:   []BehaviorKind{BehaviorChase},
	}
}

type fixture struct {
	w       *World
	rend    *recordingRenderer
	audio   *recordingAudio
	hud     *recordingHUD
	rewards *recordingRewards
	loader  *staticLoader
	cache   *ResourceCache
	logs    *bytes.Buffer
	t0      time.Time
}

type fixtureOption func(*Tuning, *staticLoader)

// newFixture builds a world with no planets, a preloaded chase-only fighter
// and recording collaborators.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	tun := DefaultTuning()
	tun.InitialPlanets = 0
	loader := &staticLoader{archetypes: map[string]*Archetype{"fighter": chaseFighter()}}
	for _, o := range opts {
		o(&tun, loader)
	}

	f := &fixture{
		rend:    &recordingRenderer{},
		audio:   &recordingAudio{},
		hud:     &recordingHUD{},
		rewards: &recordingRewards{},
		loader:  loader,
		cache:   NewResourceCache(loader),
		logs:    &bytes.Buffer{},
		t0:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if loader.gate == nil && loader.failures == 0 {
		require.NoError(t, f.cache.Preload(context.Background(), "fighter"))
	}
	logger := zerolog.New(f.logs)
	w, err := NewWorld(Options{
		Tuning: &tun,
		Collaborators: Collaborators{
			Renderer: f.rend,
			Audio:    f.audio,
			HUD:      f.hud,
			Rewards:  f.rewards,
		},
		Cache:  f.cache,
		Logger: &logger,
		Rand:   rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)
	f.w = w
	return f
}

// withFailingLoads makes the next n loader calls fail and skips the preload.
func withFailingLoads(n int) fixtureOption {
	return func(_ *Tuning, l *staticLoader) { l.failures = n }
}

func (l *staticLoader) setFailures(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

func withTuning(fn func(*Tuning)) fixtureOption {
	return func(t *Tuning, _ *staticLoader) { fn(t) }
}

func (f *fixture) at(d time.Duration) time.Time { return f.t0.Add(d) }

// step runs one world tick at t0+d.
func (f *fixture) step(d time.Duration) Events {
	return f.w.Step(f.at(d), Input{})
}

// killAll destroys every live enemy through combat resolution.
func (f *fixture) killAll(now time.Time) {
	for _, e := range slices.Clone(f.w.Wave().Enemies()) {
		l := &Laser{Pos: e.Pos, Damage: 10_000, halfExtent: 1}
		f.w.Combat().ResolveCollision(now, l, e.Body)
	}
}
