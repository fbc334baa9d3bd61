package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log    LoggingConfig `koanf:"log"`
	Store  StoreConfig   `koanf:"store"`
	Filter FilterConfig  `koanf:"filter"`
	Proxy  ListenConfig  `koanf:"proxy"`
	API    ListenConfig  `koanf:"api"`
}

// LoggingConfig controls log verbosity: "debug", "info", "warn", or "error".
type LoggingConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// StoreConfig selects where the rule list is persisted.
type StoreConfig struct {
	// Backend is "bolt" for a durable file or "memory" for process lifetime only.
	Backend string `koanf:"backend" validate:"required,oneof=bolt memory"`

	// Path is the bbolt database file; required for the bolt backend.
	Path string `koanf:"path" validate:"required_if=Backend bolt"`

	// Key is the entry the rule list is stored under.
	Key string `koanf:"key" validate:"required"`
}

type FilterConfig struct {
	// Cache sizes the decision cache. Zero disables caching.
	Cache CacheConfig `koanf:"cache"`

	// FPRate is the target false positive rate of the early-allow bloom filter.
	FPRate float64 `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

type CacheConfig struct {
	Size int `koanf:"size" validate:"gte=0"`
}

// ListenConfig is a host:port a transport binds to. The host may be empty.
type ListenConfig struct {
	Addr string `koanf:"addr" validate:"required,listen_addr"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for rr-block.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{Level: "info"},
	Store: StoreConfig{
		Backend: "bolt",
		Path:    "/var/lib/rr-block/rules.db",
		Key:     "blockedSites",
	},
	Filter: FilterConfig{
		Cache:  CacheConfig{Size: 1000},
		FPRate: 0.01,
	},
	Proxy: ListenConfig{Addr: ":8080"},
	API:   ListenConfig{Addr: "127.0.0.1:8081"},
}

// envKeys maps the supported environment variables to koanf keys.
// Variables not listed here are ignored.
var envKeys = map[string]string{
	"BLOCK_ENV":               "env",
	"BLOCK_LOG_LEVEL":         "log.level",
	"BLOCK_STORE_BACKEND":     "store.backend",
	"BLOCK_STORE_PATH":        "store.path",
	"BLOCK_STORE_KEY":         "store.key",
	"BLOCK_FILTER_CACHE_SIZE": "filter.cache.size",
	"BLOCK_FILTER_FP_RATE":    "filter.fp_rate",
	"BLOCK_PROXY_ADDR":        "proxy.addr",
	"BLOCK_API_ADDR":          "api.addr",
}

// validListenAddr accepts "host:port" or ":port" with a port in 1..65535.
// A non-empty host must be an IP address or a hostname without spaces.
func validListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil || portNum == 0 {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return !strings.ContainsAny(host, " /[]")
}

// envLoader loads environment variables with the prefix "BLOCK_" and maps them
// onto nested keys. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "BLOCK_",
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeys[strings.ToUpper(key)]
			if !ok {
				return "", nil
			}
			return mapped, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "listen_addr" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
