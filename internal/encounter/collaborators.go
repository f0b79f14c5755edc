package encounter

// Handle is an opaque renderer reference for one spawned renderable.
type Handle uint64

// RenderKind names the model a renderable shows.
type RenderKind string

const (
	KindEnemy       RenderKind = "enemy"
	KindEnemyLaser  RenderKind = "enemy_laser"
	KindPlayerLaser RenderKind = "player_laser"
	KindPlanet      RenderKind = "planet"
)

// Sound cue names.
const (
	SoundDogfight        = "dogfight"
	SoundEnemyFire       = "enemy_pew"
	SoundPlayerFire      = "pew"
	SoundHit             = "soft_boom"
	SoundKill            = "explosion"
	SoundPlayerHit       = "boom"
	SoundPlanetHit       = "planet_hit"
	SoundAlarm           = "alarm"
	SoundPlanetSaved     = "victory"
	SoundPlanetDestroyed = "planet_explosion"
)

// CurrencyCredits is the currency granted for saving planets.
const CurrencyCredits = "credits"

// Severity classifies HUD notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Renderer owns the visual scene. The core only keeps handles.
type Renderer interface {
	SpawnRenderable(kind RenderKind, pos Vec3, orient Quat) Handle
	MoveRenderable(h Handle, pos Vec3, orient Quat)
	RemoveRenderable(h Handle)
	// ForwardDirection is the renderable's world-space nose direction. It may
	// be degenerate for handles the renderer has not resolved yet.
	ForwardDirection(h Handle) Vec3
}

// Audio plays cues by name.
type Audio interface {
	PlayOneShot(name string)
	PlayLoop(name string)
	StopLoop(name string)
}

// HUD shows notifications and indicators.
type HUD interface {
	Notify(msg string, sev Severity)
	// UpdateHealthIndicator receives pct in [0, 1]; 0 hides the indicator.
	UpdateHealthIndicator(id EntityID, pct float64)
	UpdateMiniMap(blips []Blip)
}

// Rewards credits the pilot.
type Rewards interface {
	GrantXP(amount int)
	GrantCurrency(kind string, amount int)
}

// Collaborators bundles the outside world the core talks to.
type Collaborators struct {
	Renderer Renderer
	Audio    Audio
	HUD      HUD
	Rewards  Rewards
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Renderer == nil {
		c.Renderer = &NopRenderer{}
	}
	if c.Audio == nil {
		c.Audio = NopAudio{}
	}
	if c.HUD == nil {
		c.HUD = NopHUD{}
	}
	if c.Rewards == nil {
		c.Rewards = NopRewards{}
	}
	return c
}

// NopRenderer hands out handles and remembers orientations so that
// ForwardDirection stays meaningful in headless runs.
type NopRenderer struct {
	next    Handle
	orients map[Handle]Quat
}

func (r *NopRenderer) SpawnRenderable(_ RenderKind, _ Vec3, orient Quat) Handle {
	r.next++
	h := r.next
	if r.orients == nil {
		r.orients = make(map[Handle]Quat)
	}
	r.orients[h] = orient
	return h
}

func (r *NopRenderer) MoveRenderable(h Handle, _ Vec3, orient Quat) {
	if _, ok := r.orients[h]; ok {
		r.orients[h] = orient
	}
}

func (r *NopRenderer) RemoveRenderable(h Handle) { delete(r.orients, h) }

func (r *NopRenderer) ForwardDirection(h Handle) Vec3 {
	q, ok := r.orients[h]
	if !ok {
		return Vec3{}
	}
	return forwardOf(q)
}

type NopAudio struct{}

func (NopAudio) PlayOneShot(string) {}
func (NopAudio) PlayLoop(string) {}
func (NopAudio) StopLoop(string) {}

type NopHUD struct{}

func (NopHUD) Notify(string, Severity) {}
func (NopHUD) UpdateHealthIndicator(EntityID, float64) {}
func (NopHUD) UpdateMiniMap([]Blip) {}

type NopRewards struct{}

func (NopRewards) GrantXP(int) {}
func (NopRewards) GrantCurrency(string, int) {}
