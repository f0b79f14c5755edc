package encounter

import (
	"math"
	"math/rand"
	"time"
)

// BehaviorKind names a flight pattern.
type BehaviorKind int

const (
	BehaviorPatrol BehaviorKind = iota
	BehaviorChase
	BehaviorOrbit
	BehaviorAttackPlanet
	BehaviorArc
	BehaviorDive
)

var behaviorNames = [...]string{
	BehaviorPatrol:       "patrol",
	BehaviorChase:        "chase",
	BehaviorOrbit:        "orbit",
	BehaviorAttackPlanet: "attack_planet",
	BehaviorArc:          "arc",
	BehaviorDive:         "dive",
}

// AllBehaviors lists every kind in declaration order.
var AllBehaviors = []BehaviorKind{
	BehaviorPatrol, BehaviorChase, BehaviorOrbit,
	BehaviorAttackPlanet, BehaviorArc, BehaviorDive,
}

func (k BehaviorKind) String() string {
	if k >= 0 && int(k) < len(behaviorNames) {
		return behaviorNames[k]
	}
	return "unknown"
}

// ParseBehaviorKind maps a name back to its kind.
func ParseBehaviorKind(s string) (BehaviorKind, bool) {
	for i, n := range behaviorNames {
		if n == s {
			return BehaviorKind(i), true
		}
	}
	return 0, false
}

// Behavior is the per-enemy flight pattern and its scratch state. The
// variants below are the only implementations.
type Behavior interface {
	Kind() BehaviorKind
	behavior()
}

// Patrol flies between random waypoints around the planet until the player
// comes close.
type Patrol struct {
	Waypoint Vec3
}

// Chase pursues the player while they are near the defended planet and falls
// back to the planet otherwise.
type Chase struct{}

// Orbit circles the planet and breaks off when the player gets very close.
type Orbit struct {
	Angle, Radius, AngularSpeed float64
}

// AttackPlanet circles at attack radius and fires at the planet on its own
// faster cooldown.
type AttackPlanet struct {
	Angle, Radius, AngularSpeed float64
	LastShot                    time.Time
}

// Arc orbits with a vertical oscillation.
type Arc struct {
	Angle, Radius, AngularSpeed float64
	Phase, Amplitude            float64
}

// Dive swings in and out between a near and a far radius.
type Dive struct {
	Angle, Phase float64
	Near, Far    float64
	Rate         float64
}

func (*Patrol) Kind() BehaviorKind       { return BehaviorPatrol }
func (*Chase) Kind() BehaviorKind        { return BehaviorChase }
func (*Orbit) Kind() BehaviorKind        { return BehaviorOrbit }
func (*AttackPlanet) Kind() BehaviorKind { return BehaviorAttackPlanet }
func (*Arc) Kind() BehaviorKind          { return BehaviorArc }
func (*Dive) Kind() BehaviorKind         { return BehaviorDive }

func (*Patrol) behavior()       {}
func (*Chase) behavior()        {}
func (*Orbit) behavior()        {}
func (*AttackPlanet) behavior() {}
func (*Arc) behavior()          {}
func (*Dive) behavior()         {}

// newBehavior builds the scratch state for kind around a planet of the given
// radius. Every radius stays outside radius + safety margin.
func newBehavior(kind BehaviorKind, rng *rand.Rand, center Vec3, radius float64, t *Tuning) Behavior {
	safe := radius + t.SafetyMargin
	dir := 1.0
	if rng.Intn(2) == 0 {
		dir = -1
	}
	switch kind {
	case BehaviorPatrol:
		return &Patrol{Waypoint: patrolWaypoint(rng, center, safe)}
	case BehaviorChase:
		return &Chase{}
	case BehaviorOrbit:
		return &Orbit{
			Angle:        rng.Float64() * 2 * math.Pi,
			Radius:       safe + randRange(rng, 50, 250),
			AngularSpeed: dir * t.OrbitAngularSpeed * randRange(rng, 0.8, 1.2),
		}
	case BehaviorAttackPlanet:
		return &AttackPlanet{
			Angle:        rng.Float64() * 2 * math.Pi,
			Radius:       safe + t.AttackRadiusOffset,
			AngularSpeed: dir * t.OrbitAngularSpeed * 1.5,
		}
	case BehaviorArc:
		return &Arc{
			Angle:        rng.Float64() * 2 * math.Pi,
			Radius:       safe + randRange(rng, 80, 300),
			AngularSpeed: dir * t.OrbitAngularSpeed,
			Phase:        rng.Float64() * 2 * math.Pi,
			Amplitude:    t.ArcAmplitude,
		}
	case BehaviorDive:
		return &Dive{
			Angle: rng.Float64() * 2 * math.Pi,
			Phase: rng.Float64() * 2 * math.Pi,
			Near:  safe + 20,
			Far:   safe + randRange(rng, 300, 500),
			Rate:  t.DiveRate,
		}
	}
	return &Chase{}
}

func patrolWaypoint(rng *rand.Rand, center Vec3, safe float64) Vec3 {
	off := randUnit(rng)
	off[1] *= 0.3
	off, ok := safeNormalize(off)
	if !ok {
		off = Vec3{1, 0, 0}
	}
	return center.Add(off.Mul(safe + randRange(rng, 100, 400)))
}

// steerTarget advances e's behavior scratch by dt and returns the point it
// wants to fly toward. A nil target means the planet was detached and every
// pattern pursues the player.
func (w *WaveController) steerTarget(e *Enemy, player Vec3, dt float64) Vec3 {
	tg := w.target
	if tg == nil {
		return player
	}
	t := &w.tuning
	toPlayer := e.Pos.Sub(player).Len()

	switch b := e.Behavior.(type) {
	case *Patrol:
		if toPlayer < t.PatrolDetectRange {
			return player
		}
		if e.Pos.Sub(b.Waypoint).Len() < t.WaypointTolerance {
			b.Waypoint = patrolWaypoint(w.rng, tg.center, tg.radius+t.SafetyMargin)
		}
		return b.Waypoint
	case *Chase:
		if toPlayer < t.ChaseEngageRange && e.Pos.Sub(tg.center).Len() < t.MaxPlanetLeash {
			return player
		}
		return tg.center
	case *Orbit:
		if toPlayer < t.OrbitBreakRange {
			return player
		}
		b.Angle += b.AngularSpeed * dt
		return ringPoint(tg.center, b.Radius, b.Angle)
	case *AttackPlanet:
		b.Angle += b.AngularSpeed * dt
		return ringPoint(tg.center, b.Radius, b.Angle)
	case *Arc:
		if toPlayer < t.OrbitBreakRange {
			return player
		}
		b.Angle += b.AngularSpeed * dt
		p := ringPoint(tg.center, b.Radius, b.Angle)
		p[1] += math.Sin(b.Angle*2+b.Phase) * b.Amplitude
		return p
	case *Dive:
		if toPlayer < t.OrbitBreakRange {
			return player
		}
		b.Phase += b.Rate * dt
		b.Angle += b.Rate * 0.25 * dt
		r := b.Near + (b.Far-b.Near)*(0.5+0.5*math.Sin(b.Phase))
		return ringPoint(tg.center, r, b.Angle)
	}
	return player
}
