package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"scan_bot/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
	} `yaml:"service"`

	// Длительности задаются только через ENV (yaml.v2 не умеет "5m").
	Feed struct {
		URL          string        `yaml:"url"`
		StaleAfter   time.Duration `yaml:"-"` // FEED_STALE_AFTER
		DialTimeout  time.Duration `yaml:"-"` // FEED_DIAL_TIMEOUT
		PingInterval time.Duration `yaml:"-"` // FEED_PING_INTERVAL
	} `yaml:"feed"`

	Scan struct {
		Interval      time.Duration `yaml:"-"`              // SCAN_INTERVAL, напр. 5m
		PendingTTL    time.Duration `yaml:"-"`              // PENDING_TTL, сколько живёт PENDING
		StoreCapacity int           `yaml:"store_capacity"` // размер кольца сигналов
		ReferenceTZ   string        `yaml:"reference_tz"`   // граница торгового дня
	} `yaml:"scan"`

	Recovery struct {
		WindowFromHour int           `yaml:"window_from_hour"` // окно принудительной очистки
		WindowToHour   int           `yaml:"window_to_hour"`
		Grace          time.Duration `yaml:"-"` // RECOVERY_GRACE, halt старше этого в окне сносим
	} `yaml:"recovery"`

	// Дефолтная лестница частичных выходов, если у аккаунта своя не задана.
	Milestones []models.Milestone `yaml:"milestones"`

	Accounts []models.Account `yaml:"accounts"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	mu   sync.Mutex
	path string
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}

	cfg := &Config{path: "configs/" + configFileName}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) load() error {
	file, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	c.Scan.Interval = durationFromEnv("SCAN_INTERVAL", "5m")
	c.Scan.PendingTTL = durationFromEnv("PENDING_TTL", "1h")
	c.Scan.StoreCapacity = intFromEnv("STORE_CAPACITY", 100)
	c.Scan.ReferenceTZ = getenvDefault("REFERENCE_TZ", "UTC")

	c.Recovery.WindowFromHour = intFromEnv("RECOVERY_WINDOW_FROM", 0)
	c.Recovery.WindowToHour = intFromEnv("RECOVERY_WINDOW_TO", 12)
	c.Recovery.Grace = durationFromEnv("RECOVERY_GRACE", "2h")

	c.Feed.StaleAfter = durationFromEnv("FEED_STALE_AFTER", "30s")
	c.Feed.DialTimeout = durationFromEnv("FEED_DIAL_TIMEOUT", "10s")
	c.Feed.PingInterval = durationFromEnv("FEED_PING_INTERVAL", "20s")

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		c.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		c.DB = dsn
	}

	if len(c.Milestones) == 0 {
		c.Milestones = []models.Milestone{
			{Pips: 15, Fraction: 0.3},
			{Pips: 30, Fraction: 0.3},
			{Pips: 50, Fraction: 0.4},
		}
	}
	return nil
}

// ReloadAccounts перечитывает файл и отдаёт свежий список аккаунтов.
// Остальные секции на лету не меняем, только риск/аккаунты.
func (c *Config) ReloadAccounts() ([]models.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var fresh Config
	if err := yaml.NewDecoder(file).Decode(&fresh); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return fresh.Accounts, nil
}

// ReferenceLocation — TZ для границы торгового дня и сессионных окон.
func (c *Config) ReferenceLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scan.ReferenceTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
