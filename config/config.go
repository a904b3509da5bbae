package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an optional
// YAML file and are then overridden by environment variables (.env included).
type Config struct {
	Postcode         string `yaml:"postcode"`
	PropertyUPRN     string `yaml:"property_uprn"`
	PropertySelector string `yaml:"property_selector"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Timezone       string        `yaml:"timezone"`

	ListenAddr    string `yaml:"listen_addr"`
	CSVOutputPath string `yaml:"csv_output_path"`
	LogLevel      string `yaml:"log_level"`

	Postgres Postgres `yaml:"postgres"`
}

// Postgres configures the optional entity-state table.
type Postgres struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
	SSLMode  string `yaml:"sslmode"`
}

// Load reads the .env file, the YAML file named by CONFIG_FILE (if any) and
// the environment, in that order of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		PollInterval:   60 * time.Second,
		RequestTimeout: 30 * time.Second,
		Timezone:       "Local",
		ListenAddr:     ":8080",
		CSVOutputPath:  "./output/collection_states.csv",
		LogLevel:       "info",
		Postgres: Postgres{
			Host:    "localhost",
			Port:    "5432",
			User:    "bindates",
			DB:      "bin_dates",
			SSLMode: "disable",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Postcode = getEnv("POSTCODE", c.Postcode)
	c.PropertyUPRN = getEnv("PROPERTY_UPRN", c.PropertyUPRN)
	c.PropertySelector = getEnv("PROPERTY_SELECTOR", c.PropertySelector)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.CSVOutputPath = getEnv("CSV_OUTPUT_PATH", c.CSVOutputPath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	if c.PollInterval, err = getEnvDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}

	c.Postgres.Enabled = getEnvBool("POSTGRES_ENABLED", c.Postgres.Enabled)
	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnv("POSTGRES_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.DB = getEnv("POSTGRES_DB", c.Postgres.DB)
	c.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", c.Postgres.SSLMode)
	return nil
}

// Validate checks the settings needed to run the poller.
func (c *Config) Validate() error {
	var errs []error
	if c.PropertyUPRN == "" && (c.Postcode == "" || c.PropertySelector == "") {
		errs = append(errs, errors.New("PROPERTY_UPRN is required (or POSTCODE and PROPERTY_SELECTOR to resolve it)"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the timezone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	p := c.Postgres
	return "host=" + p.Host +
		" port=" + p.Port +
		" user=" + p.User +
		" password=" + p.Password +
		" dbname=" + p.DB +
		" sslmode=" + p.SSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
