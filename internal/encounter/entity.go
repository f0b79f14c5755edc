package encounter

import (
	"math/rand"
	"sort"
	"time"
)

// EntityID identifies a body in the registry. Zero is never assigned.
type EntityID uint64

// Team groups bodies for collision filtering and the mini-map.
type Team uint8

const (
	TeamPlayer Team = iota + 1
	TeamEnemy
	TeamPlanet
)

func (t Team) String() string {
	switch t {
	case TeamPlayer:
		return "player"
	case TeamEnemy:
		return "enemy"
	case TeamPlanet:
		return "planet"
	}
	return "unknown"
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max Vec3
}

func boxAround(center, half Vec3) Box {
	return Box{Min: center.Sub(half), Max: center.Add(half)}
}

// Intersects reports whether the two boxes overlap (touching counts).
func (b Box) Intersects(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

// Body is the shared physical and health record of a ship or planet.
type Body struct {
	ID          EntityID
	Team        Team
	Pos         Vec3
	HalfExtents Vec3
	Health      int
	MaxHealth   int

	rumbleUntil  time.Time
	rumbleOffset Vec3
}

// Alive reports whether the body still has health.
func (b *Body) Alive() bool { return b.Health > 0 }

// Bounds returns the body's current AABB.
func (b *Body) Bounds() Box { return boxAround(b.Pos, b.HalfExtents) }

// ApplyDamage subtracts d, clamping at zero. It reports true only on the
// hit that destroys the body.
func (b *Body) ApplyDamage(d int) (destroyed bool) {
	if b.Health <= 0 || d <= 0 {
		return false
	}
	b.Health -= d
	if b.Health <= 0 {
		b.Health = 0
		return true
	}
	return false
}

// Heal adds amount, capped at MaxHealth. Dead bodies stay dead.
func (b *Body) Heal(amount int) {
	if b.Health <= 0 || amount <= 0 {
		return
	}
	b.Health += amount
	if b.Health > b.MaxHealth {
		b.Health = b.MaxHealth
	}
}

// HealthFraction is Health/MaxHealth clamped to [0, 1].
func (b *Body) HealthFraction() float64 {
	if b.MaxHealth <= 0 {
		return 0
	}
	f := float64(b.Health) / float64(b.MaxHealth)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Damaged reports whether the body has taken any net damage.
func (b *Body) Damaged() bool { return b.Health < b.MaxHealth }

// Blip is one mini-map marker.
type Blip struct {
	ID   EntityID
	Team Team
	Pos  Vec3
}

// Registry owns every body in the world.
type Registry struct {
	next   EntityID
	bodies map[EntityID]*Body
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[EntityID]*Body)}
}

// Register creates and stores a body at full health.
func (r *Registry) Register(team Team, pos, halfExtents Vec3, health int) *Body {
	r.next++
	b := &Body{
		ID:          r.next,
		Team:        team,
		Pos:         pos,
		HalfExtents: halfExtents,
		Health:      health,
		MaxHealth:   health,
	}
	r.bodies[b.ID] = b
	return b
}

// Remove forgets a body. Unknown IDs are ignored.
func (r *Registry) Remove(id EntityID) {
	delete(r.bodies, id)
}

// Get returns the body for id, or nil.
func (r *Registry) Get(id EntityID) *Body {
	return r.bodies[id]
}

// Count returns the number of bodies on a team.
func (r *Registry) Count(team Team) int {
	n := 0
	for _, b := range r.bodies {
		if b.Team == team {
			n++
		}
	}
	return n
}

// Len returns the total number of bodies.
func (r *Registry) Len() int { return len(r.bodies) }

// Blips returns mini-map markers ordered by ID.
func (r *Registry) Blips() []Blip {
	out := make([]Blip, 0, len(r.bodies))
	for _, b := range r.bodies {
		out = append(out, Blip{ID: b.ID, Team: b.Team, Pos: b.Pos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartRumble shakes b until now+d.
func (r *Registry) StartRumble(b *Body, now time.Time, d time.Duration) {
	b.rumbleUntil = now.Add(d)
}

// ApplyRumble replaces each rumbling body's previous offset with a fresh one
// of up to intensity/2 per axis, and removes it once the rumble ends.
func (r *Registry) ApplyRumble(now time.Time, intensity float64, rng *rand.Rand) {
	for _, b := range r.bodies {
		if b.rumbleUntil.IsZero() {
			continue
		}
		b.Pos = b.Pos.Sub(b.rumbleOffset)
		if !now.Before(b.rumbleUntil) {
			b.rumbleOffset = Vec3{}
			b.rumbleUntil = time.Time{}
			continue
		}
		b.rumbleOffset = Vec3{
			(rng.Float64() - 0.5) * intensity,
			(rng.Float64() - 0.5) * intensity,
			(rng.Float64() - 0.5) * intensity,
		}
		b.Pos = b.Pos.Add(b.rumbleOffset)
	}
}
