package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds all navcore configuration.
type Config struct {
	mu sync.RWMutex

	// Routing provider
	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// Position source
	GPS GPSConfig `yaml:"gps" json:"gps"`

	// Voice guidance
	Voice VoiceConfig `yaml:"voice" json:"voice"`

	// Route cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Event bus
	Events EventsConfig `yaml:"events" json:"events"`

	// Trip logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

// RoutingConfig selects the directions backend. API keys never leave the
// process through the config API.
type RoutingConfig struct {
	Provider      string `yaml:"provider" json:"provider"` // "kakao", "google" or "estimate"
	KakaoAPIKey   string `yaml:"kakao_api_key" json:"-"`
	KakaoBaseURL  string `yaml:"kakao_base_url" json:"kakaoBaseUrl"`
	Priority      string `yaml:"priority" json:"priority"` // Kakao: RECOMMEND, TIME, DISTANCE
	GoogleAPIKey  string `yaml:"google_api_key" json:"-"`
	GoogleBaseURL string `yaml:"google_base_url" json:"googleBaseUrl"`
	TimeoutMs     int    `yaml:"timeout_ms" json:"timeoutMs"`
	DefaultMode   string `yaml:"default_mode" json:"defaultMode"`
}

type GPSConfig struct {
	Type      string  `yaml:"type" json:"type"`          // "nmea", "browser", "demo" or "disabled"
	PortPath  string  `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyGPS
	BaudRate  int     `yaml:"baud_rate" json:"baudRate"`
	DemoSpeed float64 `yaml:"demo_speed_kph" json:"demoSpeedKph"`
	DemoLat   float64 `yaml:"demo_lat" json:"demoLat"`
	DemoLng   float64 `yaml:"demo_lng" json:"demoLng"`
}

type VoiceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr" json:"redisAddr"` // empty disables the cache
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttlSeconds"`
}

type EventsConfig struct {
	Brokers     []string `yaml:"brokers" json:"brokers"` // empty disables publishing
	Topic       string   `yaml:"topic" json:"topic"`
	SkipUpdates bool     `yaml:"skip_updates" json:"skipUpdates"`
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between position rows
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	Env        string `yaml:"env" json:"env"` // "production" switches to JSON logs
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Routing: RoutingConfig{
			Provider:    "kakao",
			Priority:    "RECOMMEND",
			TimeoutMs:   10000,
			DefaultMode: "driving",
		},
		GPS: GPSConfig{
			Type:      "browser",
			PortPath:  "/dev/ttyGPS",
			BaudRate:  9600,
			DemoSpeed: 30,
			DemoLat:   37.5665,
			DemoLng:   126.9780,
		},
		Voice: VoiceConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			TTLSeconds: 600,
		},
		Events: EventsConfig{
			Topic:       "navcore.navigation.events",
			SkipUpdates: true,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/navcore",
			Interval: 1000,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			Env:        "development",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string, log *zap.Logger) *Config {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config")

	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Info("no config file, using defaults", zap.String("path", path))
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warn("config parse failed, using defaults", zap.String("path", path), zap.Error(err))
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Info("config loaded", zap.String("path", path))
	}

	// Load .env file from the same directory as the config, or from CWD.
	// Real environment variables take precedence.
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		if err := godotenv.Load(ep); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn("could not load .env", zap.String("path", ep), zap.Error(err))
			}
			continue
		}
		log.Debug("loaded .env", zap.String("path", ep))
	}

	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: KAKAO_MOBILITY_API_KEY, KAKAO_BASE_URL, GOOGLE_MAPS_API_KEY,
// ROUTING_PROVIDER, POSITION_TYPE, GPS_PORT, GPS_BAUD, REDIS_ADDR,
// KAFKA_BROKERS, KAFKA_TOPIC, VOICE_ENABLED, LISTEN_ADDR, LOG_ENABLED,
// LOG_PATH, LOG_INTERVAL_MS, APP_ENV
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KAKAO_MOBILITY_API_KEY"); v != "" {
		c.Routing.KakaoAPIKey = v
	}
	if v := os.Getenv("KAKAO_BASE_URL"); v != "" {
		c.Routing.KakaoBaseURL = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		c.Routing.GoogleAPIKey = v
	}
	if v := os.Getenv("ROUTING_PROVIDER"); v != "" {
		c.Routing.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("POSITION_TYPE"); v != "" {
		c.GPS.Type = strings.ToLower(v)
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.GPS.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPS.BaudRate = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Events.Topic = v
	}
	if v := os.Getenv("VOICE_ENABLED"); v != "" {
		c.Voice.Enabled = truthy(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Server.Env = v
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = truthy(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
}

func truthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Path returns the file the config saves to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = "/etc/navcore/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. API keys, port paths, brokers).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// VoiceEnabled reads the voice flag under the config lock.
func (c *Config) VoiceEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Voice.Enabled
}

// SetVoiceEnabled updates the voice flag under the config lock.
func (c *Config) SetVoiceEnabled(on bool) {
	c.mu.Lock()
	c.Voice.Enabled = on
	c.mu.Unlock()
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
