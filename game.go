package main

import (
	"errors"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"planet-defense/internal/encounter"
)

const (
	TickRate       = 60 // simulation steps per second
	BroadcastRate  = 30 // scene broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
)

var (
	ErrSessionFull = errors.New("session full")
	ErrRunActive   = errors.New("run still in progress")
	ErrNoPilot     = errors.New("player not found")
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// GameDeps are the shared services a Game runs against. Everything but
// Tuning may be nil.
type GameDeps struct {
	DB        *DB
	Analytics *Analytics
	Cache     *encounter.ResourceCache
	Tuning    encounter.Tuning
	Archetype string
}

// Pilot is the one player of a session.
type Pilot struct {
	ID           string
	Name         string
	AuthPlayerID int64 // 0 = guest
	Paint        string
}

// run is the state of one encounter from spawn to game over.
type run struct {
	world   *encounter.World
	scene   *sceneTracker
	out     *outbox
	ledger  *rewardLedger
	started time.Time
	ended   bool
}

// Game hosts one pilot's encounter simulation
type Game struct {
	mu         sync.Mutex
	sessionID  string
	deps       GameDeps
	log        zerolog.Logger
	pilot      *Pilot
	client     Broadcaster
	controller Broadcaster
	input      encounter.Input
	run        *run
	tick       uint64
	running    bool
	stop       chan struct{}
	now        func() time.Time
}

// NewGame creates a new Game
func NewGame(sessionID string, deps GameDeps) *Game {
	return &Game{
		sessionID: sessionID,
		deps:      deps,
		log:       log.With().Str("session", sessionID).Logger(),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

// Run starts the game loop
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop and tears the current run down.
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.running = false
		close(g.stop)
	}
	if g.run != nil {
		g.run.world.Close()
		g.run = nil
	}
}

// AddPlayer seats the session's pilot and starts a run.
func (g *Game) AddPlayer(name string, authID int64, paint string) (*Pilot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pilot != nil {
		return nil, ErrSessionFull
	}
	p := &Pilot{ID: GenerateID(4), Name: name, AuthPlayerID: authID, Paint: paint}
	if err := g.startRun(p); err != nil {
		return nil, err
	}
	g.pilot = p
	return p, nil
}

// startRun builds a fresh world with its collaborator adapters.
func (g *Game) startRun(p *Pilot) error {
	scene := newSceneTracker()
	out := newOutbox(scene)
	ledger := &rewardLedger{}
	tuning := g.deps.Tuning
	logger := g.log

	world, err := encounter.NewWorld(encounter.Options{
		Tuning: &tuning,
		Collaborators: encounter.Collaborators{
			Renderer: scene,
			Audio:    out,
			HUD:      out,
			Rewards:  ledger,
		},
		Cache:     g.deps.Cache,
		Archetype: g.deps.Archetype,
		Logger:    &logger,
	})
	if err != nil {
		return err
	}
	if g.run != nil {
		g.run.world.Close()
	}
	g.run = &run{world: world, scene: scene, out: out, ledger: ledger, started: g.now()}
	g.input = encounter.Input{}
	g.deps.Analytics.Track(EvtRunStart, p.AuthPlayerID, g.sessionID, nil)
	g.log.Info().Str("pilot", p.Name).Int64("account", p.AuthPlayerID).Msg("run started")
	return nil
}

// Welcome describes the pilot's current ship.
func (g *Game) Welcome() WelcomeMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.welcomeLocked()
}

func (g *Game) welcomeLocked() WelcomeMsg {
	if g.pilot == nil || g.run == nil {
		return WelcomeMsg{}
	}
	ship := g.run.world.Player()
	return WelcomeMsg{ID: g.pilot.ID, Ship: uint64(ship.ID), Paint: g.pilot.Paint, Health: ship.Health}
}

// RemovePlayer removes the pilot. An unfinished run is recorded as abandoned.
func (g *Game) RemovePlayer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil || g.pilot.ID != id {
		return
	}
	if g.run != nil {
		if !g.run.ended {
			g.finishRun(g.now(), false)
		}
		g.run.world.Close()
		g.run = nil
	}
	g.pilot = nil
	g.client = nil
	if g.controller != nil {
		g.controller.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "pilot left"}})
		g.controller = nil
	}
}

// Restart begins a new run once the previous one is over.
func (g *Game) Restart(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil || g.pilot.ID != id {
		return ErrNoPilot
	}
	if g.run != nil && !g.run.ended {
		return ErrRunActive
	}
	if err := g.startRun(g.pilot); err != nil {
		return err
	}
	if g.client != nil {
		g.client.SendJSON(Envelope{T: MsgWelcome, Data: g.welcomeLocked()})
	}
	return nil
}

// SetClient associates a broadcaster with the pilot
func (g *Game) SetClient(playerID string, client Broadcaster) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot != nil && g.pilot.ID == playerID {
		g.client = client
	}
}

// SetController attaches a phone controller to the pilot.
func (g *Game) SetController(playerID string, ctrl Broadcaster) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil || g.pilot.ID != playerID {
		return false
	}
	g.controller = ctrl
	if g.client != nil {
		g.client.SendJSON(Envelope{T: MsgCtrlOn})
	}
	return true
}

// RemoveController detaches the phone controller.
func (g *Game) RemoveController(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil || g.pilot.ID != playerID || g.controller == nil {
		return
	}
	g.controller = nil
	g.input = encounter.Input{}
	if g.client != nil {
		g.client.SendJSON(Envelope{T: MsgCtrlOff})
	}
}

// HasPlayer reports whether id is the seated pilot.
func (g *Game) HasPlayer(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pilot != nil && g.pilot.ID == id
}

func (g *Game) pilotID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil {
		return ""
	}
	return g.pilot.ID
}

// HasController reports whether a phone controller is attached.
func (g *Game) HasController() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.controller != nil
}

// PlayerCount returns 1 while a pilot is seated.
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil {
		return 0
	}
	return 1
}

// HandleInput latches the pilot's stick state for the next tick.
func (g *Game) HandleInput(playerID string, in ClientInput) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pilot == nil || g.pilot.ID != playerID {
		return
	}
	g.input = encounter.Input{
		ForwardAcceleration: mgl64.Clamp(in.Throttle, -1, 1),
		Forward:             encounter.Vec3{in.FX, in.FY, in.FZ},
		Fire:                in.Fire,
	}
}

// Snapshot returns the current encounter summary, or false between runs.
func (g *Game) Snapshot() (encounter.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.run == nil {
		return encounter.Snapshot{}, false
	}
	return g.run.world.Snapshot(g.now()), true
}

// update runs one game tick
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.step(g.now())
}

func (g *Game) step(now time.Time) {
	r := g.run
	if r == nil || r.ended {
		return
	}
	g.tick++

	ev := r.world.Step(now, g.input)
	r.ledger.count(ev)
	for _, e := range ev {
		r.out.push(Envelope{T: MsgEvent, Data: eventMsg(e)})
		g.track(e)
	}
	r.out.flush(g.client)

	over := ev.Has(encounter.EventGameOver)
	if g.tick%BroadcastEvery == 0 || over {
		g.broadcastState(now)
	}
	if over {
		g.finishRun(now, ev.Has(encounter.EventPlayerDestroyed))
	}
}

// track forwards the events worth keeping to analytics.
func (g *Game) track(e encounter.Event) {
	pid := g.pilot.AuthPlayerID
	a := g.deps.Analytics
	switch e.Kind {
	case encounter.EventWaveStarted:
		a.Track(EvtWaveStarted, pid, g.sessionID, map[string]int{"requested": e.Requested, "spawned": e.Spawned})
	case encounter.EventEnemyKilled:
		a.Track(EvtEnemyKilled, pid, g.sessionID, map[string]int{"xp": e.XP, "combo": e.Combo})
	case encounter.EventPlanetSaved:
		a.Track(EvtPlanetSaved, pid, g.sessionID, map[string]uint64{"planet": uint64(e.Planet)})
	case encounter.EventPlanetDestroyed:
		a.Track(EvtPlanetDestroyed, pid, g.sessionID, map[string]uint64{"planet": uint64(e.Planet)})
	case encounter.EventPlayerDestroyed:
		a.Track(EvtPlayerDestroyed, pid, g.sessionID, nil)
	}
}

// finishRun closes the current run: persists it for signed-in pilots,
// unlocks achievements and tells the client.
func (g *Game) finishRun(now time.Time, died bool) {
	r := g.run
	r.ended = true
	snap := r.world.Snapshot(now)

	rec := RunRecord{
		PlayerID:     g.pilot.AuthPlayerID,
		SessionID:    g.sessionID,
		Kills:        r.ledger.kills,
		PlanetsSaved: r.ledger.saved,
		PlanetsLost:  r.ledger.lost,
		XP:           r.ledger.xp,
		Credits:      r.ledger.credits,
		BestCombo:    snap.BestCombo,
		Duration:     now.Sub(r.started).Seconds(),
		Died:         died,
	}
	msg := GameOverMsg{
		Kills:        rec.Kills,
		PlanetsSaved: rec.PlanetsSaved,
		PlanetsLost:  rec.PlanetsLost,
		XP:           rec.XP,
		Credits:      rec.Credits,
		BestCombo:    rec.BestCombo,
		Duration:     rec.Duration,
		Died:         died,
	}

	a := g.deps.Analytics
	a.Track(EvtRunEnd, rec.PlayerID, g.sessionID, map[string]interface{}{
		"duration":      rec.Duration,
		"kills":         rec.Kills,
		"planets_saved": rec.PlanetsSaved,
		"planets_lost":  rec.PlanetsLost,
		"died":          died,
	})

	if g.deps.DB != nil && rec.PlayerID > 0 {
		res, err := g.deps.DB.RecordRun(rec)
		if err != nil {
			g.log.Error().Err(err).Int64("account", rec.PlayerID).Msg("record run failed")
		} else {
			msg.TotalXP = res.TotalXP
			msg.Level = res.Level
			msg.LevelUp = res.Level > res.PrevLevel
			if msg.LevelUp {
				a.Track(EvtLevelUp, rec.PlayerID, g.sessionID, map[string]int{"level": res.Level})
			}
			msg.Achievements = CheckAchievements(g.deps.DB, rec)
			for _, ach := range msg.Achievements {
				a.Track(EvtAchievement, rec.PlayerID, g.sessionID, map[string]string{"id": ach.ID})
			}
		}
	}

	g.log.Info().
		Int("kills", rec.Kills).
		Int("saved", rec.PlanetsSaved).
		Int("lost", rec.PlanetsLost).
		Bool("died", died).
		Float64("duration", rec.Duration).
		Msg("run ended")

	env := Envelope{T: MsgGameOver, Data: msg}
	if g.client != nil {
		g.client.SendJSON(env)
	}
	if g.controller != nil {
		g.controller.SendJSON(env)
	}
}

// broadcastState sends the msgpack scene to the pilot's client
func (g *Game) broadcastState(now time.Time) {
	if g.client == nil {
		return
	}
	r := g.run
	ship := r.world.Player()
	snap := r.world.Snapshot(now)

	state := SceneState{
		Tick: g.tick,
		Ship: ShipView{
			ID:    uint64(ship.ID),
			Pos:   vec32(ship.Pos),
			Fwd:   vec32(ship.Forward),
			Speed: float32(ship.Speed),
			HP:    ship.Health,
			MaxHP: ship.MaxHealth,
		},
		Objects: r.scene.objectViews(),
		Planets: make([]PlanetView, 0, len(snap.Planets)),
		Blips:   r.scene.blipViews(),
		Combo:   snap.Combo,
		Live:    snap.LiveEnemies,
		Over:    snap.Over,
	}
	for _, p := range snap.Planets {
		state.Planets = append(state.Planets, PlanetView{
			ID:     uint64(p.ID),
			Pos:    vec32(p.Pos),
			Radius: float32(p.Radius),
			HP:     p.Health,
			MaxHP:  p.MaxHealth,
			State:  p.State,
			Active: p.Active,
		})
	}

	data, err := msgpack.Marshal(&state)
	if err != nil {
		g.log.Error().Err(err).Msg("marshal scene")
		return
	}
	g.client.SendBinary(data)
}

func eventMsg(e encounter.Event) EventMsg {
	return EventMsg{
		Kind:      e.Kind.String(),
		Planet:    uint64(e.Planet),
		Enemy:     uint64(e.Enemy),
		Requested: e.Requested,
		Spawned:   e.Spawned,
		Damage:    e.Damage,
		XP:        e.XP,
		Combo:     e.Combo,
		Reason:    string(e.Reason),
	}
}
