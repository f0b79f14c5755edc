package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/bcrypt"

	"planet-defense/internal/encounter"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type testServer struct {
	*httptest.Server
	hub   *Hub
	wsURL string
}

// startTestServer spins up an httptest.Server with a Hub. With accounts set
// the hub gets a temp database and auth.
func startTestServer(t *testing.T, accounts bool) *testServer {
	t.Helper()

	prevIdleTimeout := SessionIdleTimeout
	SessionIdleTimeout = 150 * time.Millisecond
	prevCost := bcryptCost
	bcryptCost = bcrypt.MinCost

	// Create a temp client dir with a minimal index.html
	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	os.MkdirAll(jsDir, 0o755)
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)
	os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644)

	deps := GameDeps{
		Tuning: encounter.DefaultTuning(),
		Cache:  encounter.NewResourceCache(encounter.BuiltinLoader()),
	}
	var auth *Auth
	if accounts {
		db := openTestDB(t)
		a, err := NewAuth(db)
		require.NoError(t, err)
		deps.DB = db
		deps.Analytics = NewAnalytics(db)
		auth = a
	}

	hub := NewHub(deps, auth)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, tmpDir, ""))
	t.Cleanup(func() {
		srv.Close()
		hub.sessions.StopAll()
		deps.Analytics.Stop()
		SessionIdleTimeout = prevIdleTimeout
		bcryptCost = prevCost
	})

	return &testServer{
		Server: srv,
		hub:    hub,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// readEnvelope reads one message from the WebSocket. Binary frames are
// decoded as msgpack SceneState.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		var st SceneState
		if err := msgpack.Unmarshal(raw, &st); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return Envelope{T: MsgState, Data: st}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntil skips messages until one of type msgType arrives. A seated
// pilot's socket also carries scene frames, sounds and notifications.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for i := 0; i < 500; i++ {
		env := readEnvelope(t, conn)
		if env.T == msgType {
			return env
		}
	}
	t.Fatalf("no %s message received", msgType)
	return Envelope{}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// createAndJoin creates a session then joins it. Returns the session ID and
// the welcome payload.
func createAndJoin(t *testing.T, conn *websocket.Conn, name, sname string) (string, map[string]interface{}) {
	t.Helper()
	sendMsg(t, conn, "create", map[string]string{"name": name, "sname": sname})
	created := readUntil(t, conn, MsgCreated)
	sid := dataMap(t, created)["sid"].(string)

	sendMsg(t, conn, "join", map[string]string{"name": name, "sid": sid})
	joined := readUntil(t, conn, MsgJoined)
	if dataMap(t, joined)["sid"] != sid {
		t.Fatalf("joined wrong session: %v", dataMap(t, joined))
	}
	welcome := readUntil(t, conn, MsgWelcome)
	return sid, dataMap(t, welcome)
}

func checkSession(t *testing.T, conn *websocket.Conn, sid string) map[string]interface{} {
	t.Helper()
	sendMsg(t, conn, "check", map[string]string{"sid": sid})
	return dataMap(t, readUntil(t, conn, MsgChecked))
}

// ---------- UUID generation tests ----------

func TestGenerateUUIDFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		id := GenerateUUID()
		if !uuidRegex.MatchString(id) {
			t.Errorf("GenerateUUID() = %q, does not match UUID v4 format", id)
		}
	}
}

func TestGenerateUUIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateIDLength(t *testing.T) {
	id := GenerateID(4)
	if len(id) != 8 { // 4 bytes = 8 hex chars
		t.Errorf("expected 8 chars, got %d: %s", len(id), id)
	}

	id2 := GenerateID(8)
	if len(id2) != 16 {
		t.Errorf("expected 16 chars, got %d: %s", len(id2), id2)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Pilot", cleanName("   ", "Pilot", 16))
	assert.Equal(t, "Ace", cleanName("  Ace ", "Pilot", 16))
	assert.Equal(t, "Åsa-Sky", cleanName("Åsa-Sky-Walker", "Pilot", 7))
}

// ---------- Session manager uses UUIDs ----------

func TestSessionIDIsUUID(t *testing.T) {
	sm := NewSessionManager(testDeps())
	defer sm.StopAll()
	sess := sm.CreateSession("TestArena")
	if !uuidRegex.MatchString(sess.ID) {
		t.Errorf("session ID %q is not a valid UUID v4", sess.ID)
	}
}

// ---------- SPA routing ----------

func TestSPARoutingRoot(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control: no-cache, got %q", cc)
	}
}

func TestSPARoutingUUIDPath(t *testing.T) {
	srv := startTestServer(t, false)

	uuid := GenerateUUID()
	resp, err := http.Get(srv.URL + "/" + uuid)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("GET /%s status = %d, want 200", uuid, resp.StatusCode)
	}
	buf := make([]byte, 100)
	n, _ := resp.Body.Read(buf)
	if body := string(buf[:n]); !strings.Contains(body, "<html>") {
		t.Errorf("UUID path should serve index.html, got %q", body)
	}
}

func TestSPARoutingStaticFiles(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/js/main.js")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("GET /js/main.js status = %d, want 200", resp.StatusCode)
	}
}

func TestSPARoutingNonUUIDPath(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("GET /not-a-uuid status = %d, want 404", resp.StatusCode)
	}
}

// ---------- Session protocol ----------

func TestCheckSessionExists(t *testing.T) {
	srv := startTestServer(t, false)

	c1 := dialWS(t, srv.wsURL)
	defer c1.Close()
	sid, _ := createAndJoin(t, c1, "Pilot", "Arena")

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	d := checkSession(t, c2, sid)
	if d["exists"] != true {
		t.Error("expected exists=true")
	}
	if d["name"] != "Arena" {
		t.Errorf("expected name=Arena, got %v", d["name"])
	}
	if d["players"].(float64) != 1 {
		t.Errorf("expected 1 player, got %v", d["players"])
	}
}

func TestCheckSessionNotExists(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	fakeSID := GenerateUUID()
	d := checkSession(t, c, fakeSID)
	if d["exists"] != false {
		t.Error("expected exists=false for non-existent session")
	}
	if d["sid"] != fakeSID {
		t.Errorf("expected sid=%s, got %v", fakeSID, d["sid"])
	}
}

func TestJoinNonExistentSession(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "join", map[string]string{"name": "Lost", "sid": GenerateUUID()})
	if env := readEnvelope(t, c); env.T != MsgError {
		t.Fatalf("expected error, got %s", env.T)
	}
}

func TestSecondPilotRejected(t *testing.T) {
	srv := startTestServer(t, false)

	c1 := dialWS(t, srv.wsURL)
	defer c1.Close()
	sid, _ := createAndJoin(t, c1, "Alpha", "Solo")

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	sendMsg(t, c2, "join", map[string]string{"name": "Beta", "sid": sid})
	env := readEnvelope(t, c2)
	require.Equal(t, MsgError, env.T)
	assert.Equal(t, ErrSessionFull.Error(), dataMap(t, env)["msg"])
}

func TestCreateAndLeaveSession(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()
	sid, _ := createAndJoin(t, c, "Solo", "TempBattle")

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	if checkSession(t, c2, sid)["exists"] != true {
		t.Fatal("session should exist")
	}

	sendMsg(t, c, "leave", nil)
	time.Sleep(SessionIdleTimeout + 100*time.Millisecond)

	if checkSession(t, c2, sid)["exists"] != false {
		t.Error("session should be cleaned up after the pilot leaves")
	}
}

func TestListSessions(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "list", nil)
	listMsg := readEnvelope(t, c)
	if listMsg.T != MsgSessions {
		t.Fatalf("expected sessions, got %s", listMsg.T)
	}
	raw, _ := json.Marshal(listMsg.Data)
	var sessions []SessionInfo
	json.Unmarshal(raw, &sessions)
	if len(sessions) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(sessions))
	}

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	createAndJoin(t, c2, "P1", "Arena1")

	sendMsg(t, c, "list", nil)
	raw2, _ := json.Marshal(readEnvelope(t, c).Data)
	var sessions2 []SessionInfo
	json.Unmarshal(raw2, &sessions2)
	if len(sessions2) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions2))
	}
	if sessions2[0].Name != "Arena1" {
		t.Errorf("expected session name Arena1, got %s", sessions2[0].Name)
	}
	if sessions2[0].Players != 1 {
		t.Errorf("expected 1 player, got %d", sessions2[0].Players)
	}
}

func TestSceneStateBroadcasts(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()
	_, welcome := createAndJoin(t, c, "Tester", "StateTest")

	env := readUntil(t, c, MsgState)
	st := env.Data.(SceneState)
	assert.NotZero(t, st.Tick)
	assert.Equal(t, uint64(welcome["ship"].(float64)), st.Ship.ID)
	assert.Equal(t, 100, st.Ship.MaxHP)
	assert.NotEmpty(t, st.Planets)
	assert.NotEmpty(t, st.Objects, "planets are rendered objects")
}

func TestInputHandling(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()
	createAndJoin(t, c, "Inputter", "InputTest")

	sendMsg(t, c, "input", ClientInput{Throttle: 1, FZ: 1, Fire: true})
	// Compact frame: fx=0, fy=0, fz=32767, throttle=127, fire.
	frame := []byte{0x01, 0, 0, 0, 0, 0x7F, 0xFF, 0x7F, 0x01}
	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, frame))

	// The game keeps broadcasting and the pilot picks up speed.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := readUntil(t, c, MsgState).Data.(SceneState)
		if st.Ship.Speed > 0 {
			return
		}
	}
	t.Fatal("ship never accelerated")
}

func TestInputBeforeJoin(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "input", ClientInput{FX: 1, Fire: true})

	sendMsg(t, c, "list", nil)
	if env := readEnvelope(t, c); env.T != MsgSessions {
		t.Fatalf("expected sessions, got %s", env.T)
	}
}

func TestLeaveWithoutJoining(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "leave", nil)

	sendMsg(t, c, "list", nil)
	if env := readEnvelope(t, c); env.T != MsgSessions {
		t.Fatalf("expected sessions, got %s", env.T)
	}
}

func TestDefaultPlayerName(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "create", map[string]string{"name": "", "sname": ""})
	sid := dataMap(t, readUntil(t, c, MsgCreated))["sid"].(string)

	sendMsg(t, c, "list", nil)
	raw, _ := json.Marshal(readUntil(t, c, MsgSessions).Data)
	var sessions []SessionInfo
	json.Unmarshal(raw, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, defaultSessionName, sessions[0].Name)

	sendMsg(t, c, "join", map[string]string{"name": "", "sid": sid})
	readUntil(t, c, MsgWelcome)
}

func TestControllerAttach(t *testing.T) {
	srv := startTestServer(t, false)

	desktop := dialWS(t, srv.wsURL)
	defer desktop.Close()
	sid, welcome := createAndJoin(t, desktop, "Pilot", "PhoneTest")
	pid := welcome["id"].(string)

	phone := dialWS(t, srv.wsURL)
	sendMsg(t, phone, "control", map[string]string{"sid": sid, "pid": "wrong"})
	require.Equal(t, MsgError, readEnvelope(t, phone).T)

	sendMsg(t, phone, "control", map[string]string{"sid": sid, "pid": pid})
	ok := readEnvelope(t, phone)
	require.Equal(t, MsgControlOK, ok.T)
	readUntil(t, desktop, MsgCtrlOn)

	sendMsg(t, phone, "list", nil)
	raw, _ := json.Marshal(readUntil(t, phone, MsgSessions).Data)
	var sessions []SessionInfo
	json.Unmarshal(raw, &sessions)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Controller)

	phone.Close()
	readUntil(t, desktop, MsgCtrlOff)
}

func TestRestartRequiresGameOver(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()
	createAndJoin(t, c, "Pilot", "RestartTest")

	sendMsg(t, c, "restart", nil)
	env := readUntil(t, c, MsgError)
	assert.Equal(t, ErrRunActive.Error(), dataMap(t, env)["msg"])
}

func TestDisconnectCleansUpSession(t *testing.T) {
	srv := startTestServer(t, false)

	c1 := dialWS(t, srv.wsURL)
	sid, _ := createAndJoin(t, c1, "Temp", "TempArena")
	c1.Close()

	time.Sleep(SessionIdleTimeout + 100*time.Millisecond)

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	if checkSession(t, c2, sid)["exists"] != false {
		t.Error("session should be cleaned up after disconnect")
	}
}

// ---------- Accounts ----------

func TestAccountsDisabled(t *testing.T) {
	srv := startTestServer(t, false)

	c := dialWS(t, srv.wsURL)
	defer c.Close()
	sendMsg(t, c, "register", RegisterMsg{Username: "ace", Password: "secret123"})
	env := readEnvelope(t, c)
	require.Equal(t, MsgError, env.T)
	assert.Equal(t, errAuthNotConfigured.Error(), dataMap(t, env)["msg"])
}

func TestRegisterProfileAndBuy(t *testing.T) {
	srv := startTestServer(t, true)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "register", RegisterMsg{Username: "ace", Password: "secret123"})
	ok := readEnvelope(t, c)
	require.Equal(t, MsgAuthOK, ok.T, "%v", ok.Data)
	d := dataMap(t, ok)
	assert.Equal(t, "ace", d["username"])
	assert.NotEmpty(t, d["token"])
	pid := int64(d["pid"].(float64))
	assert.True(t, srv.hub.IsOnline(pid))

	sendMsg(t, c, "profile", nil)
	prof := dataMap(t, readEnvelope(t, c))
	assert.Equal(t, float64(1), prof["level"])
	assert.Equal(t, float64(XPForLevel(2)), prof["xp_next"])
	assert.Empty(t, prof["inventory"])

	sendMsg(t, c, "buy", BuyMsg{ItemID: "paint_crimson"})
	env := readEnvelope(t, c)
	require.Equal(t, MsgError, env.T)
	assert.Equal(t, ErrInsufficientCredits.Error(), dataMap(t, env)["msg"])

	_, err := srv.hub.db.RecordRun(RunRecord{PlayerID: pid, Credits: 100})
	require.NoError(t, err)

	sendMsg(t, c, "buy", BuyMsg{ItemID: "paint_crimson"})
	bought := readEnvelope(t, c)
	require.Equal(t, MsgBought, bought.T, "%v", bought.Data)
	assert.Equal(t, float64(75), dataMap(t, bought)["credits"])

	// Buying an owned paint re-equips it for free.
	sendMsg(t, c, "buy", BuyMsg{ItemID: "paint_crimson"})
	again := readEnvelope(t, c)
	require.Equal(t, MsgBought, again.T)
	assert.Equal(t, float64(75), dataMap(t, again)["credits"])

	// The equipped paint is reported when joining.
	_, welcome := createAndJoin(t, c, "ignored", "PaintTest")
	assert.Equal(t, "paint_crimson", welcome["paint"])
}

func TestLoginAndTokenAuth(t *testing.T) {
	srv := startTestServer(t, true)
	_, token, err := srv.hub.auth.Register("ace", "secret123")
	require.NoError(t, err)

	c := dialWS(t, srv.wsURL)
	defer c.Close()

	sendMsg(t, c, "login", LoginMsg{Username: "ace", Password: "wrong-pass"})
	require.Equal(t, MsgError, readEnvelope(t, c).T)

	sendMsg(t, c, "login", LoginMsg{Username: "ace", Password: "secret123"})
	require.Equal(t, MsgAuthOK, readEnvelope(t, c).T)

	c2 := dialWS(t, srv.wsURL)
	defer c2.Close()
	sendMsg(t, c2, "auth", AuthMsg{Token: token})
	ok := readEnvelope(t, c2)
	require.Equal(t, MsgAuthOK, ok.T)
	assert.Equal(t, "ace", dataMap(t, ok)["username"])

	sendMsg(t, c2, "auth", AuthMsg{Token: "garbage"})
	require.Equal(t, MsgError, readEnvelope(t, c2).T)
}

// ---------- HTTP API ----------

func TestStoreEndpoint(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/api/store")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []PaintItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	assert.Len(t, items, len(PaintCatalog))
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv := startTestServer(t, true)
	db := srv.hub.db
	for i, name := range []string{"low", "high"} {
		id, err := db.CreatePlayer(name, "x")
		require.NoError(t, err)
		_, err = db.RecordRun(RunRecord{PlayerID: id, XP: 100 * (i + 1), Kills: i})
		require.NoError(t, err)
	}

	resp, err := http.Get(srv.URL + "/api/leaderboard?by=xp&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []LeaderboardEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "high", entries[0].Username)
	assert.Equal(t, 1, entries[0].Rank)
}

func TestLeaderboardWithoutDatabase(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/api/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []LeaderboardEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Empty(t, entries)
}

func TestStatsEndpoint(t *testing.T) {
	srv := startTestServer(t, true)

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "live")
	assert.Contains(t, body, "runs")
	assert.Equal(t, float64(0), body["sessions"])
}

func TestSessionQREndpoint(t *testing.T) {
	srv := startTestServer(t, false)

	resp, err := http.Get(srv.URL + "/api/sessions/" + GenerateUUID() + "/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	sess := srv.hub.sessions.CreateSession("QR")
	resp, err = http.Get(srv.URL + "/api/sessions/" + sess.ID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, qrSize, img.Bounds().Dx())
}

// ---------- Hub and session manager ----------

func TestHubClientCount(t *testing.T) {
	hub := NewHub(testDeps(), nil)
	go hub.Run()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHubConnectionLimits(t *testing.T) {
	hub := NewHub(testDeps(), nil)
	for i := 0; i < maxConnsPerIP; i++ {
		require.True(t, hub.CanAccept("10.0.0.1"))
		hub.TrackConnect("10.0.0.1")
	}
	assert.False(t, hub.CanAccept("10.0.0.1"))
	assert.True(t, hub.CanAccept("10.0.0.2"))

	hub.TrackDisconnect("10.0.0.1")
	assert.True(t, hub.CanAccept("10.0.0.1"))
	assert.Equal(t, maxConnsPerIP-1, hub.TotalConns())
}

func TestSessionManagerCreateAndGet(t *testing.T) {
	sm := NewSessionManager(testDeps())
	defer sm.StopAll()
	sess := sm.CreateSession("Battle")

	got := sm.GetSession(sess.ID)
	if got == nil {
		t.Fatal("expected to find created session")
	}
	if got.Name != "Battle" {
		t.Errorf("expected name Battle, got %s", got.Name)
	}
	if sm.GetSession("nonexistent") != nil {
		t.Error("expected nil for non-existent session")
	}
}

func TestSessionManagerListSessions(t *testing.T) {
	sm := NewSessionManager(testDeps())
	defer sm.StopAll()
	sm.CreateSession("Arena1")
	time.Sleep(2 * time.Millisecond)
	sm.CreateSession("Arena2")

	list := sm.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, "Arena2", list[0].Name, "newest first")
}

func TestSessionManagerRemovePlayer(t *testing.T) {
	prevIdleTimeout := SessionIdleTimeout
	SessionIdleTimeout = 20 * time.Millisecond
	defer func() {
		SessionIdleTimeout = prevIdleTimeout
	}()

	sm := NewSessionManager(testDeps())
	defer sm.StopAll()
	sess := sm.CreateSession("TempArena")
	player, err := sess.Game.AddPlayer("TestPlayer", 0, "")
	require.NoError(t, err)

	sm.RemovePlayer(sess.ID, player.ID)

	time.Sleep(SessionIdleTimeout + 50*time.Millisecond)
	if sm.GetSession(sess.ID) != nil {
		t.Error("expected session to be removed after the pilot leaves")
	}
}

func TestSessionManagerKeepsSeatedSession(t *testing.T) {
	prevIdleTimeout := SessionIdleTimeout
	SessionIdleTimeout = 20 * time.Millisecond
	defer func() {
		SessionIdleTimeout = prevIdleTimeout
	}()

	sm := NewSessionManager(testDeps())
	defer sm.StopAll()
	sess := sm.CreateSession("Busy")
	_, err := sess.Game.AddPlayer("Stayer", 0, "")
	require.NoError(t, err)
	sm.MarkActive(sess.ID)

	time.Sleep(SessionIdleTimeout + 50*time.Millisecond)
	assert.NotNil(t, sm.GetSession(sess.ID))
}
