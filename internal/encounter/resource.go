package encounter

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ErrUnknownArchetype is returned when a loader has no definition for a name.
var ErrUnknownArchetype = errors.New("encounter: unknown archetype")

// DefaultArchetype is the enemy model spawned when none is configured.
const DefaultArchetype = "fighter"

//go:embed archetypes/*.yaml
var builtinArchetypes embed.FS

// Archetype is the shared template every enemy instance is cloned from.
type Archetype struct {
	Name        string
	Health      int
	HalfExtents Vec3
	SpeedScale  float64
	Behaviors   []BehaviorKind // empty means any
}

type archetypeFile struct {
	Name        string    `yaml:"name"`
	Health      int       `yaml:"health"`
	HalfExtents []float64 `yaml:"half_extents"`
	SpeedScale  float64   `yaml:"speed_scale"`
	Behaviors   []string  `yaml:"behaviors"`
}

// ArchetypeLoader produces archetype definitions. Loads may be slow.
type ArchetypeLoader interface {
	LoadArchetype(ctx context.Context, name string) (*Archetype, error)
}

// FSLoader reads <name>.yaml files from a filesystem.
type FSLoader struct {
	FS fs.FS
}

// BuiltinLoader serves the archetypes compiled into the binary.
func BuiltinLoader() FSLoader {
	sub, err := fs.Sub(builtinArchetypes, "archetypes")
	if err != nil {
		panic(err)
	}
	return FSLoader{FS: sub}
}

func (l FSLoader) LoadArchetype(ctx context.Context, name string) (*Archetype, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.FS, path.Clean(name)+".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArchetype, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read archetype %q: %w", name, err)
	}
	return parseArchetype(name, data)
}

func parseArchetype(name string, data []byte) (*Archetype, error) {
	var f archetypeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse archetype %q: %w", name, err)
	}
	if f.Name == "" {
		f.Name = name
	}
	if f.Health <= 0 {
		return nil, fmt.Errorf("archetype %q: health must be positive", name)
	}
	if len(f.HalfExtents) != 3 {
		return nil, fmt.Errorf("archetype %q: half_extents needs 3 values, got %d", name, len(f.HalfExtents))
	}
	a := &Archetype{
		Name:        f.Name,
		Health:      f.Health,
		HalfExtents: Vec3{f.HalfExtents[0], f.HalfExtents[1], f.HalfExtents[2]},
		SpeedScale:  f.SpeedScale,
	}
	if a.SpeedScale <= 0 {
		a.SpeedScale = 1
	}
	for _, s := range f.Behaviors {
		k, ok := ParseBehaviorKind(s)
		if !ok {
			return nil, fmt.Errorf("archetype %q: unknown behavior %q", name, s)
		}
		a.Behaviors = append(a.Behaviors, k)
	}
	return a, nil
}

// Instance is one spawned copy of an archetype. It must be released exactly
// once, whether the enemy was admitted or discarded.
type Instance struct {
	Archetype Archetype
	cache     *ResourceCache
	released  atomic.Bool
}

// Release returns the instance to the cache accounting. Repeat calls are no-ops.
func (i *Instance) Release() {
	if i == nil || !i.released.CompareAndSwap(false, true) {
		return
	}
	i.cache.outstanding.Add(-1)
}

// Pending is a future for an Instance.
type Pending struct {
	done chan struct{}
	inst *Instance
	err  error
}

// Poll returns the result without blocking. ready is false until the load
// has finished.
func (p *Pending) Poll() (inst *Instance, ready bool, err error) {
	select {
	case <-p.done:
		return p.inst, true, p.err
	default:
		return nil, false, nil
	}
}

// Wait blocks until the load finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) (*Instance, error) {
	select {
	case <-p.done:
		return p.inst, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Discard releases the instance once the load finishes, without blocking.
func (p *Pending) Discard() {
	select {
	case <-p.done:
		p.inst.Release()
	default:
		go func() {
			<-p.done
			p.inst.Release()
		}()
	}
}

// ResourceCache loads each archetype at most once at a time and clones it per
// spawn. Concurrent requests for an archetype that is still loading share the
// single in-flight load.
type ResourceCache struct {
	loader ArchetypeLoader
	group  singleflight.Group

	mu     sync.RWMutex
	loaded map[string]*Archetype

	loads       atomic.Int64
	outstanding atomic.Int64
}

// NewResourceCache wraps loader.
func NewResourceCache(loader ArchetypeLoader) *ResourceCache {
	return &ResourceCache{
		loader: loader,
		loaded: make(map[string]*Archetype),
	}
}

// Acquire returns a future for a fresh instance of name. A cached archetype
// resolves immediately. Failed loads are not cached.
func (c *ResourceCache) Acquire(ctx context.Context, name string) *Pending {
	p := &Pending{done: make(chan struct{})}
	if a := c.cached(name); a != nil {
		p.inst = c.clone(a)
		close(p.done)
		return p
	}
	go func() {
		defer close(p.done)
		a, err := c.load(ctx, name)
		if err != nil {
			p.err = err
			return
		}
		p.inst = c.clone(a)
	}()
	return p
}

// Preload loads name synchronously so later acquisitions resolve at once.
func (c *ResourceCache) Preload(ctx context.Context, name string) error {
	_, err := c.load(ctx, name)
	return err
}

// Loads is the number of loader calls made so far.
func (c *ResourceCache) Loads() int64 { return c.loads.Load() }

// Outstanding is the number of instances handed out and not yet released.
func (c *ResourceCache) Outstanding() int64 { return c.outstanding.Load() }

func (c *ResourceCache) cached(name string) *Archetype {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[name]
}

func (c *ResourceCache) load(ctx context.Context, name string) (*Archetype, error) {
	if a := c.cached(name); a != nil {
		return a, nil
	}
	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		if a := c.cached(name); a != nil {
			return a, nil
		}
		c.loads.Add(1)
		a, err := c.loader.LoadArchetype(ctx, name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.loaded[name] = a
		c.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Archetype), nil
}

func (c *ResourceCache) clone(a *Archetype) *Instance {
	inst := &Instance{Archetype: *a, cache: c}
	inst.Archetype.Behaviors = append([]BehaviorKind(nil), a.Behaviors...)
	c.outstanding.Add(1)
	return inst
}
