package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type CartoCfg struct {
	Account     string `yaml:"account"`
	APIKey      string `yaml:"api_key"`
	Domain      string `yaml:"domain"`
	Scheme      string `yaml:"scheme"`
	TablePrefix string `yaml:"table_prefix"`
	NotFound    string `yaml:"not_found"`
	WriteMode   string `yaml:"write_mode"`
}

type CacheCfg struct {
	Driver    string        `yaml:"driver"`
	TTL       time.Duration `yaml:"ttl"`
	Size      int           `yaml:"size"`
	RedisAddr string        `yaml:"redis_addr"`
}

type EventsCfg struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	H3Res   int    `yaml:"h3_res"`
	// Consume applies events from other instances to the local cache
	Consume bool   `yaml:"consume"`
	GroupID string `yaml:"group_id"`
}

type Config struct {
	Addr        string        `yaml:"addr"`
	LogLevel    string        `yaml:"log_level"`
	LogConsole  bool          `yaml:"log_console"`
	LogSampleN  int           `yaml:"log_sample_n"`
	Backend     string        `yaml:"backend"`
	DatabaseURL string        `yaml:"database_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	RateLimit   float64       `yaml:"rate_limit_rps"`
	RateBurst   int           `yaml:"rate_limit_burst"`
	Carto       CartoCfg      `yaml:"carto"`
	Cache       CacheCfg      `yaml:"cache"`
	Events      EventsCfg     `yaml:"events"`
}

func FromEnv() Config {
	res := getint("H3_RES", 9)
	if res < 0 || res > 15 {
		res = 9
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),
		Backend:     strings.ToLower(getenv("BACKEND", "sqlapi")),
		DatabaseURL: getenv("DATABASE_URL", ""),
		HTTPTimeout: getduration("HTTP_TIMEOUT", 30*time.Second),
		RateLimit:   getfloat("RATE_LIMIT_RPS", 0),
		RateBurst:   getint("RATE_LIMIT_BURST", 1),
		Carto: CartoCfg{
			Account:     getenv("CARTO_ACCOUNT", ""),
			APIKey:      getenv("CARTO_API_KEY", ""),
			Domain:      getenv("CARTO_DOMAIN", "cartodb.com"),
			Scheme:      getenv("CARTO_SCHEME", "https"),
			TablePrefix: getenv("CARTO_TABLE_PREFIX", ""),
			NotFound:    getenv("CARTO_NOT_FOUND", "error"),
			WriteMode:   getenv("CARTO_WRITE_MODE", "returning"),
		},
		Cache: CacheCfg{
			Driver:    strings.ToLower(getenv("CACHE_DRIVER", "none")),
			TTL:       getduration("CACHE_TTL", 60*time.Second),
			Size:      getint("CACHE_SIZE", 1024),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "record-changes"),
			H3Res:   res,
			Consume: getbool("EVENTS_CONSUME", false),
			GroupID: getenv("KAFKA_GROUP_ID", defaultGroupID()),
		},
	}
}

// Load reads the environment and overlays the YAML file at path, if any.
// Keys present in the file win over the environment.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// BrokerList splits the comma separated broker list.
func (e EventsCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// every instance needs its own group so that each one sees all events
func defaultGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "cartodb-gateway"
	}
	return "cartodb-gateway-" + host
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
