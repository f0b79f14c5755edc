package main

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types for analytics tracking
const (
	EvtRunStart        = "run_start"
	EvtRunEnd          = "run_end"
	EvtWaveStarted     = "wave_started"
	EvtEnemyKilled     = "enemy_killed"
	EvtPlanetSaved     = "planet_saved"
	EvtPlanetDestroyed = "planet_destroyed"
	EvtPlayerDestroyed = "player_destroyed"
	EvtPurchase        = "purchase"
	EvtAchievement     = "achievement"
	EvtSessionStart    = "session_start"
	EvtSessionEnd      = "session_end"
	EvtLevelUp         = "level_up"
)

const (
	analyticsBuffer     = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	PlayerID  int64
	SessionID string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu              sync.RWMutex
	concurrentPeers int
	activeSessions  int
	dropped         int
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsBuffer),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence. It never blocks the
// caller; when the buffer is full the event is dropped.
func (a *Analytics) Track(evtType string, playerID int64, sessionID string, data interface{}) {
	if a == nil {
		return
	}
	var payload string
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = string(b)
		}
	}
	select {
	case <-a.stop:
		return
	default:
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		PlayerID:  playerID,
		SessionID: sessionID,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}:
	default:
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

// SetConcurrentPeers updates live player count metric
func (a *Analytics) SetConcurrentPeers(n int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.concurrentPeers = n
	a.mu.Unlock()
}

// SetActiveSessions updates live session count metric
func (a *Analytics) SetActiveSessions(n int) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.activeSessions = n
	a.mu.Unlock()
}

// LiveMetrics is the in-memory half of /api/stats.
type LiveMetrics struct {
	ConcurrentPeers int `json:"concurrent_peers"`
	ActiveSessions  int `json:"active_sessions"`
	DroppedEvents   int `json:"dropped_events"`
}

func (a *Analytics) GetLiveMetrics() LiveMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return LiveMetrics{
		ConcurrentPeers: a.concurrentPeers,
		ActiveSessions:  a.activeSessions,
		DroppedEvents:   a.dropped,
	}
}

// Stop flushes queued events and shuts the writer down. It is safe to call
// more than once.
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Error().Err(err).Msg("analytics: begin tx")
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, player_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Error().Err(err).Msg("analytics: prepare")
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pid := sql.NullInt64{Int64: evt.PlayerID, Valid: evt.PlayerID > 0}
		sid := sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pid, sid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Error().Err(err).Str("event", evt.Type).Msg("analytics: insert")
		}
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Int("events", len(events)).Msg("analytics: commit")
	}
}

// --- Query methods for the API ---

func (a *Analytics) activeSince(modifier string) (int, error) {
	if a.db == nil {
		return 0, nil
	}
	var count int
	err := a.db.conn.QueryRow(`
		SELECT COUNT(DISTINCT player_id) FROM analytics_events
		WHERE player_id IS NOT NULL AND created_at >= date('now', ?)
	`, modifier).Scan(&count)
	return count, err
}

// DAUCount returns number of distinct players active today
func (a *Analytics) DAUCount() (int, error) { return a.activeSince("start of day") }

// WAUCount returns number of distinct players active in the last 7 days
func (a *Analytics) WAUCount() (int, error) { return a.activeSince("-7 days") }

// MAUCount returns number of distinct players active in the last 30 days
func (a *Analytics) MAUCount() (int, error) { return a.activeSince("-30 days") }

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	result := make(map[string]int)
	if a.db == nil {
		return result, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// RunAnalytics aggregates finished runs.
type RunAnalytics struct {
	Runs            int     `json:"runs"`
	AvgDuration     float64 `json:"avg_duration"`
	AvgPlanetsSaved float64 `json:"avg_planets_saved"`
}

// RunStats summarizes run_end events of the last N days.
func (a *Analytics) RunStats(days int) (RunAnalytics, error) {
	var r RunAnalytics
	if a.db == nil {
		return r, nil
	}
	var avgDur, avgSaved sql.NullFloat64
	err := a.db.conn.QueryRow(`
		SELECT COUNT(*),
			AVG(CASE WHEN json_valid(data) THEN json_extract(data, '$.duration') END),
			AVG(CASE WHEN json_valid(data) THEN json_extract(data, '$.planets_saved') END)
		FROM analytics_events
		WHERE event_type = ? AND created_at >= date('now', '-' || ? || ' days')
	`, EvtRunEnd, days).Scan(&r.Runs, &avgDur, &avgSaved)
	r.AvgDuration = avgDur.Float64
	r.AvgPlanetsSaved = avgSaved.Float64
	return r, err
}

// PopularPurchases returns the most purchased items
func (a *Analytics) PopularPurchases(limit int) ([]ItemAnalytics, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT COALESCE(json_extract(data, '$.item_id'), 'unknown') as item, COUNT(*) as cnt
		FROM analytics_events
		WHERE event_type = ? AND json_valid(data)
		GROUP BY item ORDER BY cnt DESC LIMIT ?
	`, EvtPurchase, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ItemAnalytics
	for rows.Next() {
		var ia ItemAnalytics
		if err := rows.Scan(&ia.ItemID, &ia.Count); err != nil {
			continue
		}
		result = append(result, ia)
	}
	return result, rows.Err()
}

// DailyActiveHistory returns DAU for the last N days
func (a *Analytics) DailyActiveHistory(days int) ([]DayCount, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT date(created_at) as day, COUNT(DISTINCT player_id)
		FROM analytics_events
		WHERE player_id IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY day ORDER BY day
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			continue
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}

// ItemAnalytics holds purchase count per item
type ItemAnalytics struct {
	ItemID string `json:"item_id"`
	Count  int    `json:"count"`
}

// DayCount holds a count for a specific day
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}
