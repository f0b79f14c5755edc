package encounter

import (
	"math"
	"time"
)

// Input is the pilot's control state for one tick.
type Input struct {
	ForwardAcceleration float64 // -1..1, throttle
	Forward             Vec3    // desired nose direction; ignored when degenerate
	Fire                bool
}

// Player is the pilot's ship.
type Player struct {
	*Body
	Forward Vec3
	Speed   float64
	Lasers  []*Laser

	lastShot time.Time
	lastHit  time.Time
}

func newPlayer(reg *Registry, t *Tuning, pos Vec3) *Player {
	h := t.PlayerHalfExtent
	return &Player{
		Body:    reg.Register(TeamPlayer, pos, Vec3{h, h, h}, t.PlayerHealth),
		Forward: ForwardAxis,
	}
}

// steer applies throttle and heading, then moves the ship.
func (p *Player) steer(in Input, dt float64, t *Tuning) {
	if f, ok := safeNormalize(in.Forward); ok {
		p.Forward = f
	}
	accel := math.Max(-1, math.Min(1, in.ForwardAcceleration))
	if accel > 0 {
		p.Speed += accel * t.PlayerAccel * dt
	} else {
		p.Speed -= (t.PlayerDecel - accel*t.PlayerAccel) * dt
	}
	p.Speed = math.Max(0, math.Min(t.PlayerMaxSpeed, p.Speed))
	p.Pos = p.Pos.Add(p.Forward.Mul(p.Speed * dt))
}

// fire spawns a laser along the nose when the fire interval has elapsed.
func (p *Player) fire(now time.Time, t *Tuning, r Renderer, a Audio) bool {
	if now.Sub(p.lastShot) < t.PlayerFireInterval {
		return false
	}
	l := &Laser{
		Owner:       OwnerPlayer,
		ShooterID:   p.ID,
		Pos:         p.Pos,
		Origin:      p.Pos,
		Vel:         p.Forward.Mul(t.PlayerLaserSpeed + p.Speed),
		SpawnTime:   now,
		Damage:      t.PlayerLaserDamage,
		halfExtent:  t.LaserHalfExtent,
		maxRange:    t.PlayerLaserRange,
		maxLifetime: t.PlayerLaserLife,
	}
	l.Handle = r.SpawnRenderable(KindPlayerLaser, l.Pos, lookRotation(p.Forward))
	p.Lasers = append(p.Lasers, l)
	p.lastShot = now
	a.PlayOneShot(SoundPlayerFire)
	return true
}
