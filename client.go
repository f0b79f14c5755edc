package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
	sendBufSize        = 256
	maxMessagesPerSec  = 50
	maxNameLen         = 16
	maxSessionNameLen  = 30
	defaultPilotName   = "Pilot"
	defaultSessionName = "Planet Defense"
)

// Client represents a WebSocket connection
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	playerID     string
	sessionID    string
	remoteAddr   string
	isController bool
	msgCount     int
	msgResetAt   time.Time
	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("ip", c.remoteAddr).Msg("ws read")
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Warn().Str("ip", c.remoteAddr).Msg("rate limit exceeded, disconnecting")
			break
		}

		if msgType == websocket.BinaryMessage {
			if in, ok := decodeBinaryInput(message); ok {
				c.applyInput(in)
			}
			continue
		}
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF marks a binary frame queued by SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal outgoing message")
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	// send may already be closed by the hub
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary queues msgpack bytes as a binary WebSocket message, prefixed
// with the 0xFF marker WritePump strips.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Err(err).Str("ip", c.remoteAddr).Msg("bad envelope")
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgInput:
		c.handleInput(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgCheck:
		c.handleCheck(env.D)
	case MsgControl:
		c.handleControl(env.D)
	case MsgRestart:
		c.handleRestart()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	case MsgBuy:
		c.handleBuy(env.D)
	}
}

func (c *Client) handleList() {
	c.SendJSON(Envelope{T: MsgSessions, Data: c.hub.sessions.ListSessions()})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sname := cleanName(msg.SessionName, defaultSessionName, maxSessionNameLen)

	sess := c.hub.sessions.CreateSession(sname)
	if sess == nil {
		c.sendError("too many active sessions")
		return
	}
	c.hub.sessions.MarkActive(sess.ID)
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	name := cleanName(msg.Name, defaultPilotName, maxNameLen)
	if c.authUsername != "" {
		name = c.authUsername
	}

	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	if c.sessionID != "" {
		c.leaveSession()
	}

	pilot, err := sess.Game.AddPlayer(name, c.authPlayerID, c.paint())
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.sessions.MarkActive(sess.ID)
	c.playerID = pilot.ID
	c.sessionID = sess.ID
	sess.Game.SetClient(pilot.ID, c)

	c.SendJSON(Envelope{T: MsgJoined, Data: map[string]string{"sid": sess.ID}})
	c.SendJSON(Envelope{T: MsgWelcome, Data: sess.Game.Welcome()})
}

// paint returns the signed-in pilot's equipped hull paint.
func (c *Client) paint() string {
	if c.hub.db == nil || c.authPlayerID == 0 {
		return ""
	}
	p, err := c.hub.db.GetPlayerByID(c.authPlayerID)
	if err != nil || p == nil {
		return ""
	}
	return p.Paint
}

func (c *Client) handleInput(data json.RawMessage) {
	var input ClientInput
	if err := json.Unmarshal(data, &input); err != nil {
		return
	}
	c.applyInput(input)
}

// applyInput forwards stick state from the pilot's own client or from the
// attached phone controller.
func (c *Client) applyInput(input ClientInput) {
	if c.sessionID == "" || c.playerID == "" {
		return
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		return
	}
	sess.Game.HandleInput(c.playerID, input)
}

func (c *Client) handleCheck(data json.RawMessage) {
	var msg CheckMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{SID: msg.SID, Exists: false}})
		return
	}
	c.SendJSON(Envelope{T: MsgChecked, Data: CheckedMsg{
		SID:     msg.SID,
		Exists:  true,
		Name:    sess.Name,
		Players: sess.Game.PlayerCount(),
	}})
}

func (c *Client) handleLeave() {
	c.leaveSession()
}

// leaveSession detaches the client from its session, as pilot or as
// controller.
func (c *Client) leaveSession() {
	if c.sessionID == "" {
		return
	}
	if c.isController {
		if sess := c.hub.sessions.GetSession(c.sessionID); sess != nil {
			sess.Game.RemoveController(c.playerID)
		}
	} else {
		c.hub.sessions.RemovePlayer(c.sessionID, c.playerID)
	}
	c.sessionID = ""
	c.playerID = ""
	c.isController = false
}

func (c *Client) handleControl(data json.RawMessage) {
	var msg ControlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sess := c.hub.sessions.GetSession(msg.SID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	if !sess.Game.SetController(msg.PlayerID, c) {
		c.sendError(ErrNoPilot.Error())
		return
	}

	c.sessionID = msg.SID
	c.playerID = msg.PlayerID
	c.isController = true
	c.hub.sessions.MarkActive(msg.SID)
	c.SendJSON(Envelope{T: MsgControlOK, Data: map[string]string{"pid": msg.PlayerID}})
}

func (c *Client) handleRestart() {
	if c.sessionID == "" || c.playerID == "" || c.isController {
		return
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		return
	}
	if err := sess.Game.Restart(c.playerID); err != nil {
		c.sendError(err.Error())
		return
	}
	c.hub.sessions.MarkActive(c.sessionID)
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError(errAuthNotConfigured.Error())
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.signedIn(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError(errAuthNotConfigured.Error())
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.signedIn(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError(errAuthNotConfigured.Error())
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError(ErrInvalidToken.Error())
		return
	}
	c.signedIn(id, username, msg.Token)
}

func (c *Client) signedIn(id int64, username, token string) {
	c.authPlayerID = id
	c.authUsername = username
	c.hub.SetOnline(id, c)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: username,
		PlayerID: id,
	}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	achievements, _ := c.hub.db.GetAchievements(c.authPlayerID)
	inventory, _ := c.hub.db.Inventory(c.authPlayerID)
	if achievements == nil {
		achievements = []string{}
	}
	if inventory == nil {
		inventory = []string{}
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:     c.authUsername,
		Level:        stats.Level,
		XP:           stats.XP,
		XPNext:       XPForLevel(stats.Level + 1),
		Credits:      stats.Credits,
		Kills:        stats.Kills,
		Deaths:       stats.Deaths,
		PlanetsSaved: stats.PlanetsSaved,
		PlanetsLost:  stats.PlanetsLost,
		Runs:         stats.Runs,
		Playtime:     stats.Playtime,
		BestCombo:    stats.BestCombo,
		Paint:        c.paint(),
		Achievements: achievements,
		Inventory:    inventory,
	}})
}

// handleBuy purchases a paint, or re-equips one the pilot already owns.
func (c *Client) handleBuy(data json.RawMessage) {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("not authenticated")
		return
	}
	var msg BuyMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	item, ok := LookupPaint(msg.ItemID)
	if !ok {
		c.sendError("unknown item")
		return
	}

	credits, err := c.hub.db.Purchase(c.authPlayerID, item.ID, item.Price)
	switch {
	case errors.Is(err, ErrAlreadyOwned):
		if err := c.hub.db.Equip(c.authPlayerID, item.ID); err != nil {
			c.sendError(err.Error())
			return
		}
		stats, err := c.hub.db.GetStats(c.authPlayerID)
		if err != nil || stats == nil {
			c.sendError("profile not found")
			return
		}
		credits = stats.Credits
	case err != nil:
		c.sendError(err.Error())
		return
	default:
		c.hub.analytics.Track(EvtPurchase, c.authPlayerID, c.sessionID, map[string]interface{}{
			"item_id": item.ID,
			"price":   item.Price,
		})
	}
	c.SendJSON(Envelope{T: MsgBought, Data: BoughtMsg{ItemID: item.ID, Credits: credits}})
}
