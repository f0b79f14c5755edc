package encounter

import "time"

// EventKind identifies what happened during a tick.
type EventKind int

const (
	EventWaveStarted EventKind = iota + 1
	EventEnemyKilled
	EventPlayerHit
	EventPlanetHit
	EventPlanetCollision
	EventPlanetSaved
	EventPlanetDestroyed
	EventPlanetSpawned
	EventPlanetRemoved
	EventDisengaged
	EventPlayerDestroyed
	EventGameOver
)

var eventNames = map[EventKind]string{
	EventWaveStarted:     "wave_started",
	EventEnemyKilled:     "enemy_killed",
	EventPlayerHit:       "player_hit",
	EventPlanetHit:       "planet_hit",
	EventPlanetCollision: "planet_collision",
	EventPlanetSaved:     "planet_saved",
	EventPlanetDestroyed: "planet_destroyed",
	EventPlanetSpawned:   "planet_spawned",
	EventPlanetRemoved:   "planet_removed",
	EventDisengaged:      "disengaged",
	EventPlayerDestroyed: "player_destroyed",
	EventGameOver:        "game_over",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// DisengageReason says why a wave was torn down without a win.
type DisengageReason string

const (
	ReasonFled       DisengageReason = "fled"
	ReasonDisplaced  DisengageReason = "displaced"
	ReasonRemoved    DisengageReason = "removed"
	ReasonLoadFailed DisengageReason = "load_failed"
)

// Event is one notable state change. Fields not relevant to Kind are zero.
type Event struct {
	Kind      EventKind
	At        time.Time
	Planet    EntityID
	Enemy     EntityID
	Requested int // wave started
	Spawned   int // wave started
	Damage    int
	XP        int
	Combo     int
	Reason    DisengageReason
}

// Events is the ordered list of events of one tick.
type Events []Event

// Count returns how many events of kind occurred.
func (ev Events) Count(kind EventKind) int {
	n := 0
	for _, e := range ev {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Has reports whether any event of kind occurred.
func (ev Events) Has(kind EventKind) bool { return ev.Count(kind) > 0 }

// First returns the first event of kind.
func (ev Events) First(kind EventKind) (Event, bool) {
	for _, e := range ev {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}
