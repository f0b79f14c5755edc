package encounter

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Combat applies laser hits: damage, rumble, health indicators, kills and
// the combo reward.
type Combat struct {
	tuning  *Tuning
	reg     *Registry
	wave    *WaveController
	col     Collaborators
	combo   *Combo
	log     zerolog.Logger
	metrics *meters

	events Events
}

func newCombat(t *Tuning, reg *Registry, wave *WaveController, col Collaborators, log zerolog.Logger, m *meters) *Combat {
	return &Combat{
		tuning:  t,
		reg:     reg,
		wave:    wave,
		col:     col,
		combo:   NewCombo(t.ComboTimeout, t.ComboSteps),
		log:     log,
		metrics: m,
	}
}

// Combo exposes the kill combo counter.
func (c *Combat) Combo() *Combo { return c.combo }

// ResolveCollision applies l to target when their boxes overlap and reports
// whether it hit. A destroyed enemy is removed from its wave and rewarded.
func (c *Combat) ResolveCollision(now time.Time, l *Laser, target *Body) bool {
	if !target.Alive() || !l.Bounds().Intersects(target.Bounds()) {
		return false
	}
	destroyed := target.ApplyDamage(l.Damage)
	c.reg.StartRumble(target, now, c.tuning.RumbleDuration)
	if target.Damaged() {
		c.col.HUD.UpdateHealthIndicator(target.ID, target.HealthFraction())
	}

	switch target.Team {
	case TeamEnemy:
		c.col.Audio.PlayOneShot(SoundHit)
		if destroyed {
			c.killEnemy(now, target)
		}
	case TeamPlanet:
		c.col.Audio.PlayOneShot(SoundPlanetHit)
		c.emit(Event{Kind: EventPlanetHit, At: now, Planet: target.ID, Damage: l.Damage})
	case TeamPlayer:
		c.col.Audio.PlayOneShot(SoundPlayerHit)
		c.emit(Event{Kind: EventPlayerHit, At: now, Damage: l.Damage})
		if destroyed {
			c.emit(Event{Kind: EventPlayerDestroyed, At: now})
		}
	}
	return true
}

func (c *Combat) killEnemy(now time.Time, b *Body) {
	c.wave.RemoveEnemy(b.ID)
	c.col.HUD.UpdateHealthIndicator(b.ID, 0)
	c.col.Audio.PlayOneShot(SoundKill)

	count := c.combo.RegisterKill(now)
	xp := c.combo.KillXP(c.tuning.KillXP, count)
	c.col.Rewards.GrantXP(xp)
	if count >= 2 {
		c.col.HUD.Notify(fmt.Sprintf("%dx COMBO! +%d XP", count, xp), SeveritySuccess)
	}
	inc(c.metrics.enemiesKilled, attribute.Int("combo", count))
	c.emit(Event{Kind: EventEnemyKilled, At: now, Enemy: b.ID, XP: xp, Combo: count})
}

// ResolvePlayerLasers checks every player laser against the live enemies and
// returns the lasers that did not hit.
func (c *Combat) ResolvePlayerLasers(now time.Time, lasers []*Laser, r Renderer) []*Laser {
	for i := len(lasers) - 1; i >= 0; i-- {
		l := lasers[i]
		for _, e := range c.wave.Enemies() {
			if c.ResolveCollision(now, l, e.Body) {
				r.RemoveRenderable(l.Handle)
				lasers = removeLaserAt(lasers, i)
				break
			}
		}
	}
	return lasers
}

// ResolveEnemyLasers checks planet-bound lasers against the planets and the
// rest against the player. A laser that reaches the player during the hit
// cooldown is absorbed without damage.
func (c *Combat) ResolveEnemyLasers(now time.Time, planets []*Planet, player *Player) {
	for i := len(c.wave.lasers) - 1; i >= 0; i-- {
		l := c.wave.lasers[i]
		if l.TargetingPlanet {
			for _, p := range planets {
				if c.ResolveCollision(now, l, p.Body) {
					c.wave.removeLaser(i)
					break
				}
			}
			continue
		}
		if player == nil || !player.Alive() || !l.Bounds().Intersects(player.Bounds()) {
			continue
		}
		if now.Sub(player.lastHit) >= c.tuning.PlayerHitCooldown {
			c.ResolveCollision(now, l, player.Body)
			player.lastHit = now
		}
		c.wave.removeLaser(i)
	}
}

// DamagePlayer applies non-laser damage, such as flying into a planet.
func (c *Combat) DamagePlayer(now time.Time, player *Player, dmg int) {
	destroyed := player.ApplyDamage(dmg)
	c.reg.StartRumble(player.Body, now, c.tuning.RumbleDuration)
	c.col.HUD.UpdateHealthIndicator(player.ID, player.HealthFraction())
	c.col.Audio.PlayOneShot(SoundPlayerHit)
	if destroyed {
		c.emit(Event{Kind: EventPlayerDestroyed, At: now})
	}
}

func (c *Combat) emit(e Event) {
	c.events = append(c.events, e)
}

// drain hands over the events collected since the last call.
func (c *Combat) drain() Events {
	ev := c.events
	c.events = nil
	return ev
}
