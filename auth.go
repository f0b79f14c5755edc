package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 7 * 24 * time.Hour
	jwtIssuer        = "planet-defense"
	jwtSecretKey     = "jwt_secret"
	minPasswordLen   = 4
	minUsernameLen   = 2
	maxUsernameLen   = 16
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

// bcryptCost is a var so tests can trade strength for speed.
var bcryptCost = 12

var (
	ErrUsernameTaken     = errors.New("username already taken")
	ErrBadCredentials    = errors.New("invalid username or password")
	ErrTooManyAttempts   = errors.New("too many login attempts, try again later")
	ErrInvalidToken      = errors.New("invalid token")
	errInternal          = errors.New("internal error")
	errAuthNotConfigured = errors.New("accounts are disabled")
)

// Claims are the JWT claims issued to pilots.
type Claims struct {
	PlayerID int64  `json:"pid"`
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// Auth handles authentication
type Auth struct {
	db        *DB
	jwtSecret []byte
	now       func() time.Time

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB) (*Auth, error) {
	if db == nil {
		return nil, errAuthNotConfigured
	}
	secret, err := loadOrCreateSecret(db)
	if err != nil {
		return nil, err
	}
	return &Auth{
		db:        db,
		jwtSecret: secret,
		now:       time.Now,
		rateMap:   make(map[string]*rateEntry),
	}, nil
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) ([]byte, error) {
	if h := db.GetSetting(jwtSecretKey); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b, nil
		}
		log.Warn().Msg("stored jwt secret is malformed, rotating")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := db.SetSetting(jwtSecretKey, hex.EncodeToString(secret)); err != nil {
		return nil, fmt.Errorf("persist jwt secret: %w", err)
	}
	return secret, nil
}

// Register creates a new account
func (a *Auth) Register(username, password string) (int64, string, error) {
	username = strings.TrimSpace(username)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return 0, "", fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		return 0, "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	exists, err := a.db.UsernameExists(username)
	if err != nil {
		log.Error().Err(err).Msg("register: username lookup")
		return 0, "", errInternal
	}
	if exists {
		return 0, "", ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return 0, "", errInternal
	}

	id, err := a.db.CreatePlayer(username, string(hash))
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("register: create player")
		return 0, "", errInternal
	}

	token, err := a.generateToken(id, username)
	if err != nil {
		return 0, "", errInternal
	}
	log.Info().Int64("player", id).Str("username", username).Msg("account registered")
	return id, token, nil
}

// Login authenticates a user and returns a JWT
func (a *Auth) Login(username, password, ip string) (int64, string, error) {
	if !a.checkRate(ip) {
		log.Warn().Str("ip", ip).Msg("login rate limit")
		return 0, "", ErrTooManyAttempts
	}

	player, err := a.db.GetPlayerByUsername(strings.TrimSpace(username))
	if err != nil {
		log.Error().Err(err).Msg("login: player lookup")
		return 0, "", errInternal
	}
	if player == nil || player.PassHash == "" {
		return 0, "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(player.PassHash), []byte(password)); err != nil {
		return 0, "", ErrBadCredentials
	}

	token, err := a.generateToken(player.ID, player.Username)
	if err != nil {
		return 0, "", errInternal
	}
	return player.ID, token, nil
}

// ValidateToken validates a JWT and returns (playerID, username, error)
func (a *Auth) ValidateToken(tokenStr string) (int64, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, a.signingKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.PlayerID <= 0 || claims.Username == "" {
		return 0, "", ErrInvalidToken
	}
	return claims.PlayerID, claims.Username, nil
}

func (a *Auth) signingKey(*jwt.Token) (interface{}, error) {
	return a.jwtSecret, nil
}

func (a *Auth) generateToken(playerID int64, username string) (string, error) {
	now := a.now()
	claims := Claims{
		PlayerID: playerID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
