package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin     = "join"
	MsgLeave    = "leave"
	MsgInput    = "input"
	MsgCreate   = "create"  // create session
	MsgList     = "list"    // list sessions
	MsgCheck    = "check"   // check if session exists
	MsgControl  = "control" // phone controller attach
	MsgRestart  = "restart" // new run after game over
	MsgRegister = "register"
	MsgLogin    = "login"
	MsgAuth     = "auth"
	MsgProfile  = "profile"
	MsgBuy      = "buy"
)

// Server -> Client message types
const (
	MsgState       = "state" // msgpack SceneState, sent as a binary frame
	MsgWelcome     = "welcome"
	MsgSessions    = "sessions"
	MsgJoined      = "joined"
	MsgCreated     = "created" // session created, client should navigate
	MsgError       = "error"
	MsgChecked     = "checked"    // session check response
	MsgControlOK   = "control_ok" // controller attach confirmed
	MsgCtrlOn      = "ctrl_on"    // notify desktop: controller attached
	MsgCtrlOff     = "ctrl_off"   // notify desktop: controller detached
	MsgNotify      = "notify"
	MsgSound       = "sound"
	MsgHealth      = "health"
	MsgEvent       = "event"
	MsgGameOver    = "gameover"
	MsgProfileData = "profile"
	MsgAuthOK      = "auth_ok"
	MsgBought      = "bought"
)

// binaryInputLen is the size of a compact input frame:
// [0x01, fx int16, fy int16, fz int16, throttle int8, flags]
const binaryInputLen = 9

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids a double unmarshal.
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// ClientInput is the pilot's stick state, sent by the client at 20Hz or more.
type ClientInput struct {
	Throttle float64 `json:"thr"` // -1..1
	FX       float64 `json:"fx"`  // desired nose direction
	FY       float64 `json:"fy"`
	FZ       float64 `json:"fz"`
	Fire     bool    `json:"fire"`
}

// decodeBinaryInput unpacks a compact input frame. Direction components are
// scaled by 1/32767, throttle by 1/127.
func decodeBinaryInput(msg []byte) (ClientInput, bool) {
	if len(msg) != binaryInputLen || msg[0] != 0x01 {
		return ClientInput{}, false
	}
	axis := func(hi, lo byte) float64 {
		return float64(int16(uint16(hi)<<8|uint16(lo))) / 32767
	}
	return ClientInput{
		FX:       axis(msg[1], msg[2]),
		FY:       axis(msg[3], msg[4]),
		FZ:       axis(msg[5], msg[6]),
		Throttle: float64(int8(msg[7])) / 127,
		Fire:     msg[8]&0x01 != 0,
	}, true
}

// JoinMsg is sent when player wants to join a session
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
}

// CreateMsg is sent when player wants to create a session
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
}

// WelcomeMsg is sent to a pilot when they join or restart
type WelcomeMsg struct {
	ID     string `json:"id"`
	Ship   uint64 `json:"ship"` // registry ID of the pilot's ship
	Paint  string `json:"paint,omitempty"`
	Health int    `json:"hp"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	Controller bool   `json:"ctrl,omitempty"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// ControlMsg is sent by a phone controller to attach to a player
type ControlMsg struct {
	SID      string `json:"sid"`
	PlayerID string `json:"pid"`
}

// CheckMsg is sent by client to check if a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Players int    `json:"players,omitempty"`
}

// NotifyMsg is a HUD toast.
type NotifyMsg struct {
	Text     string `json:"msg"`
	Severity string `json:"sev"`
}

// SoundMsg plays, loops or stops a named cue.
type SoundMsg struct {
	Name string `json:"n"`
	Loop bool   `json:"loop,omitempty"`
	Stop bool   `json:"stop,omitempty"`
}

// HealthMsg updates one health indicator; Pct 0 hides it.
type HealthMsg struct {
	ID  uint64  `json:"id"`
	Pct float64 `json:"pct"`
}

// EventMsg mirrors an encounter event for the client's effects layer.
type EventMsg struct {
	Kind      string `json:"k"`
	Planet    uint64 `json:"pl,omitempty"`
	Enemy     uint64 `json:"en,omitempty"`
	Requested int    `json:"req,omitempty"`
	Spawned   int    `json:"sp,omitempty"`
	Damage    int    `json:"dmg,omitempty"`
	XP        int    `json:"xp,omitempty"`
	Combo     int    `json:"combo,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// GameOverMsg closes a run.
type GameOverMsg struct {
	Kills        int              `json:"kills"`
	PlanetsSaved int              `json:"saved"`
	PlanetsLost  int              `json:"lost"`
	XP           int              `json:"xp"`
	Credits      int              `json:"credits"`
	BestCombo    int              `json:"best_combo"`
	Duration     float64          `json:"duration"`
	Died         bool             `json:"died"`
	TotalXP      int              `json:"total_xp,omitempty"`
	Level        int              `json:"level,omitempty"`
	LevelUp      bool             `json:"level_up,omitempty"`
	Achievements []AchievementDef `json:"achievements,omitempty"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg re-authenticates with a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// ProfileDataMsg carries a pilot's lifetime record
type ProfileDataMsg struct {
	Username     string   `json:"username"`
	Level        int      `json:"level"`
	XP           int      `json:"xp"`
	XPNext       int      `json:"xp_next"`
	Credits      int      `json:"credits"`
	Kills        int      `json:"kills"`
	Deaths       int      `json:"deaths"`
	PlanetsSaved int      `json:"planets_saved"`
	PlanetsLost  int      `json:"planets_lost"`
	Runs         int      `json:"runs"`
	Playtime     float64  `json:"playtime"`
	BestCombo    int      `json:"best_combo"`
	Paint        string   `json:"paint,omitempty"`
	Achievements []string `json:"achievements"`
	Inventory    []string `json:"inventory"`
}

// BuyMsg purchases (or re-equips) a hull paint
type BuyMsg struct {
	ItemID string `json:"item"`
}

// BoughtMsg confirms a purchase
type BoughtMsg struct {
	ItemID  string `json:"item"`
	Credits int    `json:"credits"`
}

// SceneState is the binary scene broadcast. Positions are float32 to keep
// frames small.
type SceneState struct {
	Tick    uint64       `msgpack:"tick"`
	Ship    ShipView     `msgpack:"s"`
	Objects []ObjectView `msgpack:"o"`
	Planets []PlanetView `msgpack:"pl"`
	Blips   []BlipView   `msgpack:"mm"`
	Combo   int          `msgpack:"c"`
	Live    int          `msgpack:"live"`
	Over    bool         `msgpack:"over,omitempty"`
}

// ShipView is the pilot's ship.
type ShipView struct {
	ID    uint64     `msgpack:"id"`
	Pos   [3]float32 `msgpack:"p"`
	Fwd   [3]float32 `msgpack:"f"`
	Speed float32    `msgpack:"v"`
	HP    int        `msgpack:"hp"`
	MaxHP int        `msgpack:"mhp"`
}

// ObjectView is one renderable spawned by the encounter core.
type ObjectView struct {
	Handle uint64     `msgpack:"h"`
	Kind   string     `msgpack:"k"`
	Pos    [3]float32 `msgpack:"p"`
	Rot    [4]float32 `msgpack:"r"` // x, y, z, w
}

// PlanetView is one defended planet.
type PlanetView struct {
	ID     uint64     `msgpack:"id"`
	Pos    [3]float32 `msgpack:"p"`
	Radius float32    `msgpack:"r"`
	HP     int        `msgpack:"hp"`
	MaxHP  int        `msgpack:"mhp"`
	State  string     `msgpack:"st"`
	Active bool       `msgpack:"a,omitempty"`
}

// BlipView is one minimap marker.
type BlipView struct {
	ID   uint64     `msgpack:"id"`
	Team string     `msgpack:"t"`
	Pos  [3]float32 `msgpack:"p"`
}
