package encounter

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTuning is returned by Tuning.Validate.
var ErrInvalidTuning = errors.New("encounter: invalid tuning")

// ComboStep maps a minimum combo count to an XP multiplier.
type ComboStep struct {
	MinCount   int     `mapstructure:"min_count" yaml:"min_count"`
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`
}

// Tuning holds every gameplay constant of the encounter loop. Distances are
// world units, speeds are units per second.
type Tuning struct {
	// Wave
	EnemyCap        int           `mapstructure:"enemy_cap"`
	WaveSize        int           `mapstructure:"wave_size"`
	SpawnRingOffset float64       `mapstructure:"spawn_ring_offset"` // beyond planet radius + safety margin
	SpawnJitter     float64       `mapstructure:"spawn_jitter"`
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`

	// Enemy flight
	EnemySpeed         float64 `mapstructure:"enemy_speed"`
	EnemyTurnRate      float64 `mapstructure:"enemy_turn_rate"` // slerp fraction per 1/60s
	SpeedVarianceMin   float64 `mapstructure:"speed_variance_min"`
	SpeedVarianceMax   float64 `mapstructure:"speed_variance_max"`
	SafetyMargin       float64 `mapstructure:"safety_margin"`
	ChaseEngageRange   float64 `mapstructure:"chase_engage_range"`
	MaxPlanetLeash     float64 `mapstructure:"max_planet_leash"`
	PatrolDetectRange  float64 `mapstructure:"patrol_detect_range"`
	WaypointTolerance  float64 `mapstructure:"waypoint_tolerance"`
	OrbitBreakRange    float64 `mapstructure:"orbit_break_range"`
	OrbitAngularSpeed  float64 `mapstructure:"orbit_angular_speed"` // rad/s
	ArcAmplitude       float64 `mapstructure:"arc_amplitude"`
	DiveRate           float64 `mapstructure:"dive_rate"` // rad/s of the in/out oscillation
	AttackRadiusOffset float64 `mapstructure:"attack_radius_offset"`

	// Enemy fire
	FireRange          float64       `mapstructure:"fire_range"`
	FireAngle          float64       `mapstructure:"fire_angle"` // radians
	FireCooldown       time.Duration `mapstructure:"fire_cooldown"`
	AttackFireCooldown time.Duration `mapstructure:"attack_fire_cooldown"`
	LaserSpeed         float64       `mapstructure:"laser_speed"`
	LaserRange         float64       `mapstructure:"laser_range"`
	LaserLifetime      time.Duration `mapstructure:"laser_lifetime"`
	LaserHalfExtent    float64       `mapstructure:"laser_half_extent"`
	LaserPlanetDamage  int           `mapstructure:"laser_planet_damage"`
	LaserPlayerDamage  int           `mapstructure:"laser_player_damage"`
	PlayerHitCooldown  time.Duration `mapstructure:"player_hit_cooldown"`

	// Planets
	InitialPlanets        int           `mapstructure:"initial_planets"`
	MaxPlanets            int           `mapstructure:"max_planets"`
	PlanetHealth          int           `mapstructure:"planet_health"`
	PlanetRadiusMin       float64       `mapstructure:"planet_radius_min"`
	PlanetRadiusMax       float64       `mapstructure:"planet_radius_max"`
	PlanetSpawnMin        float64       `mapstructure:"planet_spawn_min"`
	PlanetSpawnBand       float64       `mapstructure:"planet_spawn_band"`
	PlanetSpawnFlatten    float64       `mapstructure:"planet_spawn_flatten"` // vertical scale of spawn direction
	EngageRadius          float64       `mapstructure:"engage_radius"`
	FleeDistance          float64       `mapstructure:"flee_distance"`
	RemovalDistance       float64       `mapstructure:"removal_distance"`
	NewPlanetDistance     float64       `mapstructure:"new_planet_distance"`
	SpawnLockHold         time.Duration `mapstructure:"spawn_lock_hold"`
	GameOverDelay         time.Duration `mapstructure:"game_over_delay"`
	PlanetCollisionDamage int           `mapstructure:"planet_collision_damage"`
	PlanetCollisionCD     time.Duration `mapstructure:"planet_collision_cooldown"`

	// Rewards
	PlanetSavedHeal    int `mapstructure:"planet_saved_heal"`
	PlanetSavedXP      int `mapstructure:"planet_saved_xp"`
	PlanetSavedCredits int `mapstructure:"planet_saved_credits"`
	KillXP             int `mapstructure:"kill_xp"`

	// Combat feedback
	ComboTimeout    time.Duration `mapstructure:"combo_timeout"`
	ComboSteps      []ComboStep   `mapstructure:"combo_steps"`
	RumbleDuration  time.Duration `mapstructure:"rumble_duration"`
	RumbleIntensity float64       `mapstructure:"rumble_intensity"`

	// Player ship
	PlayerHealth       int           `mapstructure:"player_health"`
	PlayerHalfExtent   float64       `mapstructure:"player_half_extent"`
	PlayerAccel        float64       `mapstructure:"player_accel"`
	PlayerDecel        float64       `mapstructure:"player_decel"`
	PlayerMaxSpeed     float64       `mapstructure:"player_max_speed"`
	PlayerFireInterval time.Duration `mapstructure:"player_fire_interval"`
	PlayerLaserSpeed   float64       `mapstructure:"player_laser_speed"`
	PlayerLaserRange   float64       `mapstructure:"player_laser_range"`
	PlayerLaserLife    time.Duration `mapstructure:"player_laser_lifetime"`
	PlayerLaserDamage  int           `mapstructure:"player_laser_damage"`

	MaxStep time.Duration `mapstructure:"max_step"` // dt clamp for stalled ticks
}

// DefaultTuning returns the stock balance.
func DefaultTuning() Tuning {
	return Tuning{
		EnemyCap:        5,
		WaveSize:        7,
		SpawnRingOffset: 120,
		SpawnJitter:     30,
		LoadTimeout:     1500 * time.Millisecond,

		EnemySpeed:         21,
		EnemyTurnRate:      0.018,
		SpeedVarianceMin:   0.8,
		SpeedVarianceMax:   1.2,
		SafetyMargin:       80,
		ChaseEngageRange:   600,
		MaxPlanetLeash:     1500,
		PatrolDetectRange:  450,
		WaypointTolerance:  40,
		OrbitBreakRange:    150,
		OrbitAngularSpeed:  0.25,
		ArcAmplitude:       90,
		DiveRate:           0.6,
		AttackRadiusOffset: 60,

		FireRange:          200,
		FireAngle:          math.Pi / 4,
		FireCooldown:       200 * time.Millisecond,
		AttackFireCooldown: 120 * time.Millisecond,
		LaserSpeed:         1200,
		LaserRange:         400,
		LaserLifetime:      5 * time.Second,
		LaserHalfExtent:    0.3,
		LaserPlanetDamage:  7,
		LaserPlayerDamage:  35,
		PlayerHitCooldown:  500 * time.Millisecond,

		InitialPlanets:        1,
		MaxPlanets:            3,
		PlanetHealth:          2000,
		PlanetRadiusMin:       300,
		PlanetRadiusMax:       600,
		PlanetSpawnMin:        1800,
		PlanetSpawnBand:       1000,
		PlanetSpawnFlatten:    0.2,
		EngageRadius:          1500,
		FleeDistance:          2500,
		RemovalDistance:       6000,
		NewPlanetDistance:     4000,
		SpawnLockHold:         2 * time.Second,
		GameOverDelay:         time.Second,
		PlanetCollisionDamage: 50,
		PlanetCollisionCD:     2 * time.Second,

		PlanetSavedHeal:    50,
		PlanetSavedXP:      100,
		PlanetSavedCredits: 25,
		KillXP:             20,

		ComboTimeout: 3 * time.Second,
		ComboSteps: []ComboStep{
			{MinCount: 5, Multiplier: 3},
			{MinCount: 3, Multiplier: 2},
			{MinCount: 2, Multiplier: 1.5},
		},
		RumbleDuration:  time.Second,
		RumbleIntensity: 0.2,

		PlayerHealth:       100,
		PlayerHalfExtent:   3,
		PlayerAccel:        60,
		PlayerDecel:        30,
		PlayerMaxSpeed:     120,
		PlayerFireInterval: 150 * time.Millisecond,
		PlayerLaserSpeed:   900,
		PlayerLaserRange:   300,
		PlayerLaserLife:    3 * time.Second,
		PlayerLaserDamage:  26,

		MaxStep: 100 * time.Millisecond,
	}
}

// Validate checks the values the encounter loop relies on.
func (t Tuning) Validate() error {
	switch {
	case t.EnemyCap <= 0:
		return fmt.Errorf("%w: enemy_cap must be positive", ErrInvalidTuning)
	case t.WaveSize <= 0:
		return fmt.Errorf("%w: wave_size must be positive", ErrInvalidTuning)
	case t.PlanetRadiusMin <= 0 || t.PlanetRadiusMax < t.PlanetRadiusMin:
		return fmt.Errorf("%w: planet radius range [%v, %v]", ErrInvalidTuning, t.PlanetRadiusMin, t.PlanetRadiusMax)
	case t.EnemySpeed <= 0 || t.LaserSpeed <= 0 || t.PlayerLaserSpeed <= 0:
		return fmt.Errorf("%w: speeds must be positive", ErrInvalidTuning)
	case t.EnemyTurnRate <= 0 || t.EnemyTurnRate > 1:
		return fmt.Errorf("%w: enemy_turn_rate must be in (0, 1]", ErrInvalidTuning)
	case t.FleeDistance <= t.EngageRadius:
		return fmt.Errorf("%w: flee_distance must exceed engage_radius", ErrInvalidTuning)
	case t.SpawnLockHold <= t.LoadTimeout:
		return fmt.Errorf("%w: spawn_lock_hold %v must exceed load_timeout %v", ErrInvalidTuning, t.SpawnLockHold, t.LoadTimeout)
	case t.MaxPlanets <= 0:
		return fmt.Errorf("%w: max_planets must be positive", ErrInvalidTuning)
	}
	return nil
}
