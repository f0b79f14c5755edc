package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize               = 256
	defaultLeaderboardN  = 20
	maxLeaderboardN      = 100
	statsWindowDays      = 7
	popularPurchasesTopN = 5
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write json response")
	}
}

// SetupRoutes configures HTTP routes. publicURL is the externally visible
// base used in controller QR codes; when empty it is derived from the request.
func SetupRoutes(hub *Hub, clientDir, publicURL string) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(clientDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		// SPA: serve index.html for root and UUID paths
		if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
			http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	}))

	mux.HandleFunc("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusOK, []LeaderboardEntry{})
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = defaultLeaderboardN
		}
		if limit > maxLeaderboardN {
			limit = maxLeaderboardN
		}
		entries, err := hub.db.GetLeaderboard(r.URL.Query().Get("by"), limit)
		if err != nil {
			log.Error().Err(err).Msg("leaderboard query")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []LeaderboardEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"clients":  hub.ClientCount(),
			"sessions": hub.sessions.Count(),
		}
		if a := hub.analytics; a != nil {
			resp["live"] = a.GetLiveMetrics()
			if counts, err := a.EventCounts(statsWindowDays); err == nil {
				resp["events"] = counts
			}
			if runs, err := a.RunStats(statsWindowDays); err == nil {
				resp["runs"] = runs
			}
			if top, err := a.PopularPurchases(popularPurchasesTopN); err == nil && top != nil {
				resp["purchases"] = top
			}
			if dau, err := a.DAUCount(); err == nil {
				resp["dau"] = dau
			}
			if wau, err := a.WAUCount(); err == nil {
				resp["wau"] = wau
			}
			if mau, err := a.MAUCount(); err == nil {
				resp["mau"] = mau
			}
			if hist, err := a.DailyActiveHistory(statsWindowDays); err == nil && hist != nil {
				resp["daily"] = hist
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /api/store", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, PaintCatalog)
	})

	// Phone controller pairing: the QR encodes the session URL in control mode.
	mux.HandleFunc("GET /api/sessions/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		sid := r.PathValue("id")
		if hub.sessions.GetSession(sid) == nil {
			http.NotFound(w, r)
			return
		}
		base := publicURL
		if base == "" {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			base = scheme + "://" + r.Host
		}
		png, err := qrcode.Encode(base+"/"+sid+"?control=1", qrcode.Medium, qrSize)
		if err != nil {
			log.Error().Err(err).Str("session", sid).Msg("qr encode")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("ip", ip).Msg("upgrade failed")
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}
