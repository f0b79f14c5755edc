package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"planet-defense/internal/encounter"
)

const configName = "planet-defense"

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	DB        DBConfig         `mapstructure:"db"`
	Log       LogConfig        `mapstructure:"log"`
	Assets    AssetsConfig     `mapstructure:"assets"`
	Encounter encounter.Tuning `mapstructure:"encounter"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	ClientDir string `mapstructure:"client_dir"`
	// PublicURL is the externally reachable base used in controller QR codes.
	PublicURL   string        `mapstructure:"public_url"`
	SessionIdle time.Duration `mapstructure:"session_idle"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// AssetsConfig selects where enemy archetypes come from. An empty Dir uses
// the archetypes compiled into the binary.
type AssetsConfig struct {
	Dir       string `mapstructure:"dir"`
	Archetype string `mapstructure:"archetype"`
}

// LoadConfig reads planet-defense.yaml from dir when present, then applies
// PD_* environment overrides (PD_SERVER_ADDR, PD_ENCOUNTER_ENEMY_CAP, ...).
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{Encounter: encounter.DefaultTuning()}
	if v.IsSet("encounter.combo_steps") {
		cfg.Encounter.ComboSteps = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Encounter.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.client_dir", "")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.session_idle", 5*time.Minute)

	v.SetDefault("db.path", "planet-defense.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("assets.dir", "")
	v.SetDefault("assets.archetype", encounter.DefaultArchetype)

	// Every scalar tuning field is registered so that env overrides reach
	// Unmarshal. Combo steps only come from the file.
	def := reflect.ValueOf(encounter.DefaultTuning())
	typ := def.Type()
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag == "" || def.Field(i).Kind() == reflect.Slice {
			continue
		}
		v.SetDefault("encounter."+tag, def.Field(i).Interface())
	}
}
