package main

import (
	"sort"

	"planet-defense/internal/encounter"
)

// outbox implements the core's Audio and HUD. Calls made during a tick are
// queued and flushed to the pilot's client once the tick is done. Health
// indicator updates are coalesced per entity.
type outbox struct {
	scene  *sceneTracker
	queue  []Envelope
	health map[encounter.EntityID]float64
}

func newOutbox(scene *sceneTracker) *outbox {
	return &outbox{scene: scene, health: make(map[encounter.EntityID]float64)}
}

func (o *outbox) PlayOneShot(name string) {
	o.queue = append(o.queue, Envelope{T: MsgSound, Data: SoundMsg{Name: name}})
}

func (o *outbox) PlayLoop(name string) {
	o.queue = append(o.queue, Envelope{T: MsgSound, Data: SoundMsg{Name: name, Loop: true}})
}

func (o *outbox) StopLoop(name string) {
	o.queue = append(o.queue, Envelope{T: MsgSound, Data: SoundMsg{Name: name, Stop: true}})
}

func (o *outbox) Notify(msg string, sev encounter.Severity) {
	o.queue = append(o.queue, Envelope{T: MsgNotify, Data: NotifyMsg{Text: msg, Severity: string(sev)}})
}

func (o *outbox) UpdateHealthIndicator(id encounter.EntityID, pct float64) {
	o.health[id] = pct
}

func (o *outbox) UpdateMiniMap(blips []encounter.Blip) {
	o.scene.setBlips(blips)
}

func (o *outbox) push(env Envelope) {
	o.queue = append(o.queue, env)
}

// flush sends the queued messages in order, then the health updates in
// entity order. A nil destination just discards them.
func (o *outbox) flush(dst Broadcaster) {
	if dst != nil {
		for _, env := range o.queue {
			dst.SendJSON(env)
		}
		ids := make([]encounter.EntityID, 0, len(o.health))
		for id := range o.health {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			dst.SendJSON(Envelope{T: MsgHealth, Data: HealthMsg{ID: uint64(id), Pct: o.health[id]}})
		}
	}
	o.queue = o.queue[:0]
	for id := range o.health {
		delete(o.health, id)
	}
}

// rewardLedger implements the core's Rewards for one run. Totals are
// persisted when the run ends.
type rewardLedger struct {
	xp      int
	credits int
	kills   int
	saved   int
	lost    int
}

func (l *rewardLedger) GrantXP(amount int) {
	if amount > 0 {
		l.xp += amount
	}
}

func (l *rewardLedger) GrantCurrency(kind string, amount int) {
	if kind == encounter.CurrencyCredits && amount > 0 {
		l.credits += amount
	}
}

// count folds the tally events of one tick into the ledger.
func (l *rewardLedger) count(ev encounter.Events) {
	l.kills += ev.Count(encounter.EventEnemyKilled)
	l.saved += ev.Count(encounter.EventPlanetSaved)
	l.lost += ev.Count(encounter.EventPlanetDestroyed)
}
