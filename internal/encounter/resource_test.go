package encounter

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceCacheSharesInFlightLoad(t *testing.T) {
	loader := &staticLoader{
		archetypes: map[string]*Archetype{"fighter": chaseFighter()},
		gate:       make(chan struct{}),
	}
	cache := NewResourceCache(loader)
	ctx := context.Background()

	futures := make([]*Pending, 8)
	for i := range futures {
		futures[i] = cache.Acquire(ctx, "fighter")
	}
	_, ready, _ := futures[0].Poll()
	assert.False(t, ready)

	close(loader.gate)
	instances := make([]*Instance, 0, len(futures))
	for _, p := range futures {
		inst, err := p.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fighter", inst.Archetype.Name)
		instances = append(instances, inst)
	}
	assert.Equal(t, 1, loader.callCount())
	assert.Equal(t, int64(1), cache.Loads())
	assert.Equal(t, int64(8), cache.Outstanding())

	inst, ready, err := cache.Acquire(ctx, "fighter").Poll()
	require.True(t, ready, "cached archetypes resolve immediately")
	require.NoError(t, err)
	instances = append(instances, inst)

	for _, inst := range instances {
		inst.Release()
		inst.Release()
	}
	assert.Equal(t, int64(0), cache.Outstanding())
}

func TestResourceCacheInstancesAreIndependent(t *testing.T) {
	a := chaseFighter()
	a.Behaviors = []BehaviorKind{BehaviorOrbit, BehaviorDive}
	cache := NewResourceCache(&staticLoader{archetypes: map[string]*Archetype{"fighter": a}})
	ctx := context.Background()

	first, err := cache.Acquire(ctx, "fighter").Wait(ctx)
	require.NoError(t, err)
	first.Archetype.Behaviors[0] = BehaviorChase

	second, err := cache.Acquire(ctx, "fighter").Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, BehaviorOrbit, second.Archetype.Behaviors[0])
}

func TestResourceCacheDoesNotCacheFailures(t *testing.T) {
	loader := &staticLoader{
		archetypes: map[string]*Archetype{"fighter": chaseFighter()},
		failures:   1,
	}
	cache := NewResourceCache(loader)
	ctx := context.Background()

	_, err := cache.Acquire(ctx, "fighter").Wait(ctx)
	require.ErrorIs(t, err, errLoadFailed)
	assert.Equal(t, int64(0), cache.Outstanding())

	inst, err := cache.Acquire(ctx, "fighter").Wait(ctx)
	require.NoError(t, err)
	assert.NotNil(t, inst)
	assert.Equal(t, 2, loader.callCount())

	_, err = cache.Acquire(ctx, "dreadnought").Wait(ctx)
	assert.ErrorIs(t, err, ErrUnknownArchetype)
}

func TestPreloadReportsErrors(t *testing.T) {
	cache := NewResourceCache(&staticLoader{})
	assert.ErrorIs(t, cache.Preload(context.Background(), "fighter"), ErrUnknownArchetype)
}

func TestFSLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"scout.yaml":   {Data: []byte("health: 40\nhalf_extents: [2, 1, 3]\nbehaviors: [orbit, dive]\n")},
		"flat.yaml":    {Data: []byte("health: 10\nhalf_extents: [1, 1]\n")},
		"rolling.yaml": {Data: []byte("health: 10\nhalf_extents: [1, 1, 1]\nbehaviors: [barrel_roll]\n")},
		"ghost.yaml":   {Data: []byte("half_extents: [1, 1, 1]\n")},
	}
	l := FSLoader{FS: fsys}
	ctx := context.Background()

	a, err := l.LoadArchetype(ctx, "scout")
	require.NoError(t, err)
	assert.Equal(t, "scout", a.Name)
	assert.Equal(t, 40, a.Health)
	assert.Equal(t, Vec3{2, 1, 3}, a.HalfExtents)
	assert.Equal(t, 1.0, a.SpeedScale)
	assert.Equal(t, []BehaviorKind{BehaviorOrbit, BehaviorDive}, a.Behaviors)

	for _, name := range []string{"flat", "rolling", "ghost"} {
		_, err := l.LoadArchetype(ctx, name)
		assert.Error(t, err, name)
	}

	_, err = l.LoadArchetype(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownArchetype)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.LoadArchetype(cancelled, "scout")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuiltinArchetypes(t *testing.T) {
	l := BuiltinLoader()
	ctx := context.Background()

	fighter, err := l.LoadArchetype(ctx, DefaultArchetype)
	require.NoError(t, err)
	assert.Equal(t, 80, fighter.Health)
	assert.Empty(t, fighter.Behaviors)

	bomber, err := l.LoadArchetype(ctx, "bomber")
	require.NoError(t, err)
	assert.Equal(t, []BehaviorKind{BehaviorAttackPlanet, BehaviorOrbit}, bomber.Behaviors)

	interceptor, err := l.LoadArchetype(ctx, "interceptor")
	require.NoError(t, err)
	assert.Greater(t, interceptor.SpeedScale, fighter.SpeedScale)
}
