package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Redis    Redis    `yaml:"redis"`
	NATS     NATS     `yaml:"nats"`
	Gameplay Gameplay `yaml:"gameplay"`
	Rooms    Rooms    `yaml:"rooms"`
	Sweep    Sweep    `yaml:"sweep"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type NATS struct {
	URL           string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	SubjectPrefix string `yaml:"subject-prefix" env:"NATS_SUBJECT_PREFIX" env-default:"uttt"`
}

type Gameplay struct {
	EventsUntilSnapshot          int           `yaml:"events-until-snapshot" env:"EVENTS_UNTIL_SNAPSHOT" env-default:"20"`
	MaxActiveGames               int           `yaml:"max-active-games" env:"MAX_ACTIVE_GAMES" env-default:"1000"`
	BackpressureThresholdPercent int           `yaml:"backpressure-threshold-percent" env:"BACKPRESSURE_THRESHOLD_PERCENT" env-default:"90"`
	LockTimeout                  time.Duration `yaml:"lock-timeout" env:"LOCK_TIMEOUT" env-default:"400ms"`
}

type Rooms struct {
	TTLMinutes      int `yaml:"ttl-minutes" env:"ROOM_TTL_MINUTES" env-default:"5"`
	MaxRegularRooms int `yaml:"max-regular-rooms" env:"MAX_REGULAR_ROOMS" env-default:"75"`
	MaxPrivateRooms int `yaml:"max-private-rooms" env:"MAX_PRIVATE_ROOMS" env-default:"50"`
}

type Sweep struct {
	BatchSize int           `yaml:"batch-size" env:"SWEEP_BATCH_SIZE" env-default:"200"`
	Interval  time.Duration `yaml:"interval" env:"SWEEP_INTERVAL" env-default:"5s"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Rooms) TTL() time.Duration {
	return time.Duration(that.TTLMinutes) * time.Minute
}
