package encounter

import "time"

// LaserOwner tells which side fired a laser.
type LaserOwner uint8

const (
	OwnerEnemy LaserOwner = iota + 1
	OwnerPlayer
)

// Laser is a straight-flying projectile. Vel is a private copy of the
// shooter's aim, never a reference to it.
type Laser struct {
	Handle          Handle
	Owner           LaserOwner
	ShooterID       EntityID
	Pos             Vec3
	Origin          Vec3
	Vel             Vec3
	SpawnTime       time.Time
	TargetingPlanet bool
	Damage          int

	halfExtent  float64
	maxRange    float64
	maxLifetime time.Duration
}

// Bounds returns the laser's AABB.
func (l *Laser) Bounds() Box {
	return boxAround(l.Pos, Vec3{l.halfExtent, l.halfExtent, l.halfExtent})
}

// Advance moves the laser by dt seconds.
func (l *Laser) Advance(dt float64) {
	l.Pos = l.Pos.Add(l.Vel.Mul(dt))
}

// Expired reports whether the laser flew past its range or outlived its
// lifetime.
func (l *Laser) Expired(now time.Time) bool {
	if now.Sub(l.SpawnTime) > l.maxLifetime {
		return true
	}
	return l.Pos.Sub(l.Origin).LenSqr() > l.maxRange*l.maxRange
}

// stepLasers advances every laser and drops the expired ones, iterating in
// reverse so removal does not skip elements.
func stepLasers(lasers []*Laser, now time.Time, dt float64, r Renderer) []*Laser {
	for i := len(lasers) - 1; i >= 0; i-- {
		l := lasers[i]
		l.Advance(dt)
		if l.Expired(now) {
			r.RemoveRenderable(l.Handle)
			lasers = removeLaserAt(lasers, i)
			continue
		}
		r.MoveRenderable(l.Handle, l.Pos, lookRotation(l.Vel))
	}
	return lasers
}

func removeLaserAt(lasers []*Laser, i int) []*Laser {
	last := len(lasers) - 1
	copy(lasers[i:], lasers[i+1:])
	lasers[last] = nil
	return lasers[:last]
}
