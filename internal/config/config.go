package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env-default:"8080"`
}

type TelegramConfig struct {
	Enabled           bool   `yaml:"enabled" env-default:"false"`
	ApiKey            string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	AdminLogLevel     string `yaml:"admin_log_level" env-default:"error"`
	DigestIntervalMin int    `yaml:"digest_interval_min" env-default:"60"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env-default:"mysql"`
}

type MySQLConfig struct {
	HostName     string `yaml:"hostname" env-default:"localhost"`
	Port         string `yaml:"port" env-default:"3306"`
	UserName     string `yaml:"username" env-default:""`
	Password     string `yaml:"password" env:"MYSQL_PASSWORD" env-default:""`
	Database     string `yaml:"database" env-default:"keyshop"`
	MaxOpenConns int    `yaml:"max_open_conns" env-default:"50"`
	Migrate      bool   `yaml:"migrate" env-default:"true"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:"admin"`
	Password string `yaml:"password" env-default:"pass"`
	Database string `yaml:"database" env-default:"keyshop"`
}

type SessionConfig struct {
	IdleTimeout            time.Duration `yaml:"idle_timeout" env-default:"0s"`
	LoginAttemptsPerMinute int           `yaml:"login_attempts_per_minute" env-default:"5"`
}

// AdminConfig seeds the first administrator when the store has no accounts.
type AdminConfig struct {
	Handle     string `yaml:"handle" env-default:"admin"`
	Credential string `yaml:"credential" env:"ADMIN_CREDENTIAL" env-default:""`
	Balance    string `yaml:"balance" env-default:"0"`
}

type Config struct {
	Env      string         `yaml:"env" env-default:"local"`
	Listen   Listen         `yaml:"listen"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Session  SessionConfig  `yaml:"session"`
	Admin    AdminConfig    `yaml:"admin"`
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	once.Do(func() {
		conf, err := Load(path)
		if err != nil {
			log.Fatal(err)
		}
		instance = conf
	})
	return instance
}

func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	return conf, nil
}
