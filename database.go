package main

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var (
	ErrAlreadyOwned        = errors.New("item already owned")
	ErrInsufficientCredits = errors.New("not enough credits")
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow represents a player record in the database
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	Paint     string
	CreatedAt time.Time
}

// StatsRow represents lifetime pilot stats
type StatsRow struct {
	PlayerID     int64
	XP           int
	Level        int
	Credits      int
	Kills        int
	Deaths       int
	PlanetsSaved int
	PlanetsLost  int
	Runs         int
	Playtime     float64 // seconds
	BestCombo    int
}

// RunRecord is one finished run as reported by a Game.
type RunRecord struct {
	PlayerID     int64
	SessionID    string
	Kills        int
	PlanetsSaved int
	PlanetsLost  int
	XP           int
	Credits      int
	BestCombo    int
	Duration     float64 // seconds
	Died         bool
}

// RunResult carries the totals after a run was recorded.
type RunResult struct {
	TotalXP   int
	Level     int
	PrevLevel int
	Credits   int
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Game loops and the analytics writer share one connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		paint TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		credits INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		planets_saved INTEGER NOT NULL DEFAULT 0,
		planets_lost INTEGER NOT NULL DEFAULT 0,
		runs INTEGER NOT NULL DEFAULT 0,
		playtime REAL NOT NULL DEFAULT 0,
		best_combo INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL REFERENCES players(id),
		session_id TEXT NOT NULL DEFAULT '',
		kills INTEGER NOT NULL DEFAULT 0,
		planets_saved INTEGER NOT NULL DEFAULT 0,
		planets_lost INTEGER NOT NULL DEFAULT 0,
		xp_earned INTEGER NOT NULL DEFAULT 0,
		credits_earned INTEGER NOT NULL DEFAULT 0,
		best_combo INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		died INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS achievements (
		player_id INTEGER NOT NULL REFERENCES players(id),
		achievement_id TEXT NOT NULL,
		unlocked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (player_id, achievement_id)
	);

	CREATE TABLE IF NOT EXISTS inventory (
		player_id INTEGER NOT NULL REFERENCES players(id),
		item_id TEXT NOT NULL,
		bought_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (player_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_player ON runs(player_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_type_time ON analytics_events(event_type, created_at);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		log.Error().Err(err).Msg("db migration failed")
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreatePlayer creates a new player account (returns player ID)
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO players (username, pass_hash) VALUES (?, ?)", username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("INSERT INTO stats (player_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetPlayerByUsername returns a player by username, or nil when unknown.
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	return db.scanPlayer(db.conn.QueryRow(
		"SELECT id, username, pass_hash, paint, created_at FROM players WHERE username = ?",
		username,
	))
}

// GetPlayerByID returns a player by ID, or nil when unknown.
func (db *DB) GetPlayerByID(id int64) (*PlayerRow, error) {
	return db.scanPlayer(db.conn.QueryRow(
		"SELECT id, username, pass_hash, paint, created_at FROM players WHERE id = ?",
		id,
	))
}

func (db *DB) scanPlayer(row *sql.Row) (*PlayerRow, error) {
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.Paint, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns player stats, or nil when the player is unknown.
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(`
		SELECT player_id, xp, level, credits, kills, deaths, planets_saved,
			planets_lost, runs, playtime, best_combo
		FROM stats WHERE player_id = ?`,
		playerID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.PlayerID, &s.XP, &s.Level, &s.Credits, &s.Kills, &s.Deaths,
		&s.PlanetsSaved, &s.PlanetsLost, &s.Runs, &s.Playtime, &s.BestCombo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// XPForLevel returns the total XP required to reach a given level.
// Level 1 requires 0 XP, level 2 requires 100, etc.
// Formula: sum of 100 * i^1.5 for i in 1..level-1
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	total := 0.0
	for i := 1; i < level; i++ {
		total += 100.0 * math.Pow(float64(i), 1.5)
	}
	return int(total)
}

// XPToNextLevel returns XP needed from current level to reach the next level
func XPToNextLevel(level int) int {
	return XPForLevel(level+1) - XPForLevel(level)
}

// CalculateLevel returns the level for a given total XP amount
func CalculateLevel(totalXP int) int {
	level := 1
	for {
		needed := XPForLevel(level + 1)
		if totalXP < needed {
			return level
		}
		level++
		if level >= maxLevel {
			return maxLevel
		}
	}
}

const maxLevel = 100

// RecordRun stores a finished run and folds it into the pilot's lifetime
// stats in one transaction.
func (db *DB) RecordRun(r RunRecord) (RunResult, error) {
	var res RunResult
	tx, err := db.conn.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	died := 0
	if r.Died {
		died = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO runs (player_id, session_id, kills, planets_saved, planets_lost,
			xp_earned, credits_earned, best_combo, duration, died)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PlayerID, r.SessionID, r.Kills, r.PlanetsSaved, r.PlanetsLost,
		r.XP, r.Credits, r.BestCombo, r.Duration, died,
	); err != nil {
		return res, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.QueryRow("SELECT level FROM stats WHERE player_id = ?", r.PlayerID).Scan(&res.PrevLevel); err != nil {
		return res, fmt.Errorf("read stats: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE stats SET
			xp = xp + ?,
			credits = credits + ?,
			kills = kills + ?,
			deaths = deaths + ?,
			planets_saved = planets_saved + ?,
			planets_lost = planets_lost + ?,
			runs = runs + 1,
			playtime = playtime + ?,
			best_combo = MAX(best_combo, ?)
		WHERE player_id = ?`,
		r.XP, r.Credits, r.Kills, died, r.PlanetsSaved, r.PlanetsLost,
		r.Duration, r.BestCombo, r.PlayerID,
	); err != nil {
		return res, fmt.Errorf("update stats: %w", err)
	}

	if err := tx.QueryRow("SELECT xp, credits FROM stats WHERE player_id = ?", r.PlayerID).Scan(&res.TotalXP, &res.Credits); err != nil {
		return res, err
	}
	res.Level = CalculateLevel(res.TotalXP)
	if _, err := tx.Exec("UPDATE stats SET level = ? WHERE player_id = ?", res.Level, r.PlayerID); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	Username     string `json:"username"`
	Level        int    `json:"level"`
	XP           int    `json:"xp"`
	Kills        int    `json:"kills"`
	PlanetsSaved int    `json:"planets_saved"`
	BestCombo    int    `json:"best_combo"`
}

// GetLeaderboard returns top players sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	// Whitelist valid order columns
	validCols := map[string]string{
		"xp": "s.xp", "level": "s.level", "kills": "s.kills",
		"planets": "s.planets_saved", "combo": "s.best_combo",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "s.xp"
	}

	rows, err := db.conn.Query(`
		SELECT p.username, s.level, s.xp, s.kills, s.planets_saved, s.best_combo
		FROM stats s JOIN players p ON p.id = s.player_id
		ORDER BY `+col+` DESC, p.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Level, &e.XP, &e.Kills, &e.PlanetsSaved, &e.BestCombo); err != nil {
			return nil, err
		}
		e.Rank = len(result) + 1
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetSetting returns a stored setting, or "" when missing.
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// GetAchievements returns the IDs unlocked by a player.
func (db *DB) GetAchievements(playerID int64) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT achievement_id FROM achievements WHERE player_id = ? ORDER BY unlocked_at, achievement_id",
		playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UnlockAchievement records an achievement and reports whether it is new.
func (db *DB) UnlockAchievement(playerID int64, id string) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT OR IGNORE INTO achievements (player_id, achievement_id) VALUES (?, ?)",
		playerID, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Purchase spends credits on an item, records it and equips it. It returns
// the remaining credits.
func (db *DB) Purchase(playerID int64, itemID string, price int) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var owned int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM inventory WHERE player_id = ? AND item_id = ?",
		playerID, itemID,
	).Scan(&owned); err != nil {
		return 0, err
	}
	if owned > 0 {
		return 0, ErrAlreadyOwned
	}

	res, err := tx.Exec(
		"UPDATE stats SET credits = credits - ? WHERE player_id = ? AND credits >= ?",
		price, playerID, price,
	)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrInsufficientCredits
	}
	if _, err := tx.Exec("INSERT INTO inventory (player_id, item_id) VALUES (?, ?)", playerID, itemID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec("UPDATE players SET paint = ? WHERE id = ?", itemID, playerID); err != nil {
		return 0, err
	}

	var credits int
	if err := tx.QueryRow("SELECT credits FROM stats WHERE player_id = ?", playerID).Scan(&credits); err != nil {
		return 0, err
	}
	return credits, tx.Commit()
}

// Equip selects an owned item as the pilot's paint.
func (db *DB) Equip(playerID int64, itemID string) error {
	res, err := db.conn.Exec(`
		UPDATE players SET paint = ?
		WHERE id = ? AND EXISTS (SELECT 1 FROM inventory WHERE player_id = ? AND item_id = ?)`,
		itemID, playerID, playerID, itemID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("equip %s: not owned", itemID)
	}
	return nil
}

// Inventory lists the items a player owns.
func (db *DB) Inventory(playerID int64) ([]string, error) {
	rows, err := db.conn.Query("SELECT item_id FROM inventory WHERE player_id = ? ORDER BY bought_at, item_id", playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}
