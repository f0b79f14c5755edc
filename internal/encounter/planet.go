package encounter

import "time"

// PlanetState is the encounter phase of one planet. Dormant, Approaching,
// UnderAttack, Cleared and Destroyed are the only implementations.
type PlanetState interface {
	Name() string
	planetState()
}

// Dormant planets wait for the player to come within engage radius.
type Dormant struct{}

// Approaching planets have a wave requested and hold the spawn lock until
// LockUntil.
type Approaching struct {
	LockUntil time.Time
}

// UnderAttack planets have a wave in progress.
type UnderAttack struct {
	Since time.Time
}

// Cleared planets were saved and never engage again.
type Cleared struct {
	At time.Time
}

// Destroyed planets are gone.
type Destroyed struct {
	At time.Time
}

func (Dormant) Name() string     { return "dormant" }
func (Approaching) Name() string { return "approaching" }
func (UnderAttack) Name() string { return "under_attack" }
func (Cleared) Name() string     { return "cleared" }
func (Destroyed) Name() string   { return "destroyed" }

func (Dormant) planetState()     {}
func (Approaching) planetState() {}
func (UnderAttack) planetState() {}
func (Cleared) planetState()     {}
func (Destroyed) planetState()   {}

// Planet is a defendable body.
type Planet struct {
	*Body
	Handle Handle
	Radius float64
	State  PlanetState

	lastCollision time.Time
}

// HasEnemies reports whether a wave has been triggered for this planet and
// not yet resolved.
func (p *Planet) HasEnemies() bool {
	switch p.State.(type) {
	case Approaching, UnderAttack:
		return true
	}
	return false
}

// Cleared reports whether the planet was saved.
func (p *Planet) Cleared() bool {
	_, ok := p.State.(Cleared)
	return ok
}

// Dormant reports whether the planet can be engaged.
func (p *Planet) Dormant() bool {
	_, ok := p.State.(Dormant)
	return ok
}
