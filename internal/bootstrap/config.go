package bootstrap

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/info"
	"github.com/eleven-am/parakeet-wyoming/internal/server"
	"github.com/eleven-am/parakeet-wyoming/internal/shared"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
	"gopkg.in/yaml.v3"
)

// Version is stamped at build time with -ldflags.
var Version = "1.1.0"

var validPrecisions = map[string]bool{"float32": true, "float16": true, "bfloat16": true}

type EngineConfig struct {
	Backend    string               `yaml:"backend"`
	Address    string               `yaml:"address"`
	Token      string               `yaml:"token"`
	TLS        bool                 `yaml:"tls"`
	Timeout    time.Duration        `yaml:"timeout"`
	StaticText string               `yaml:"static_text"`
	Backoff    shared.BackoffConfig `yaml:"backoff"`
}

type GateConfig struct {
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
}

type StagingConfig struct {
	Mode string `yaml:"mode"`
	Dir  string `yaml:"dir"`
}

type RateLimitConfig struct {
	ConnectionsPerSecond float64 `yaml:"connections_per_second"`
	Burst                int     `yaml:"burst"`
}

type Config struct {
	Model          string   `yaml:"model"`
	URI            string   `yaml:"uri"`
	DataDirs       []string `yaml:"data_dirs"`
	DownloadDir    string   `yaml:"download_dir"`
	Device         string   `yaml:"device"`
	Language       string   `yaml:"language"`
	Languages      []string `yaml:"languages"`
	Precision      string   `yaml:"precision"`
	LocalFilesOnly bool     `yaml:"local_files_only"`

	Debug     bool   `yaml:"debug"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddr    string `yaml:"http_addr"`
	GRPCAddr      string `yaml:"grpc_addr"`
	MaxAudioBytes int    `yaml:"max_audio_bytes"`

	Engine    EngineConfig    `yaml:"engine"`
	Gate      GateConfig      `yaml:"gate"`
	Staging   StagingConfig   `yaml:"staging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	DatabaseDSN   string `yaml:"database_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	ShowVersion bool `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:     info.AutoModel,
		URI:       "tcp://0.0.0.0:10300",
		DataDirs:  []string{"/data"},
		Device:    "cpu",
		Language:  info.DefaultLanguage,
		Languages: []string{info.DefaultLanguage},
		Precision: "float32",
		LogLevel:  "info",
		LogFormat: "json",

		ServerAddr:    ":8080",
		GRPCAddr:      ":50051",
		MaxAudioBytes: 64 << 20,

		Engine: EngineConfig{
			Backend: transcription.BackendGRPC,
			Address: "localhost:50052",
			Timeout: 2 * time.Minute,
		},
		Staging: StagingConfig{Mode: "tempdir"},
	}
}

// LoadConfig layers defaults, an optional YAML file, environment variables and
// command line flags, in that order.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	path := getEnv("CONFIG_FILE", "")
	if p := lookupFlag(args, "config"); p != "" {
		path = p
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.parseFlags(args, os.Stderr); err != nil {
		return nil, err
	}
	cfg.finalize()

	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Model = getEnv("MODEL", c.Model)
	c.URI = getEnv("WYOMING_URI", c.URI)
	if dirs := getEnv("DATA_DIR", ""); dirs != "" {
		c.DataDirs = splitList(dirs)
	}
	c.DownloadDir = getEnv("DOWNLOAD_DIR", c.DownloadDir)
	c.Device = getEnv("DEVICE", c.Device)
	c.Language = getEnv("LANGUAGE", c.Language)
	if langs := getEnv("MODEL_LANGUAGES", ""); langs != "" {
		c.Languages = splitList(langs)
	}
	c.Precision = getEnv("PRECISION", c.Precision)
	c.LocalFilesOnly = getEnvBool("LOCAL_FILES_ONLY", c.LocalFilesOnly)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.MaxAudioBytes = getEnvInt("MAX_AUDIO_BYTES", c.MaxAudioBytes)

	c.Engine.Backend = getEnv("ENGINE_BACKEND", c.Engine.Backend)
	c.Engine.Address = getEnv("STT_ADDRESS", c.Engine.Address)
	c.Engine.Token = getEnv("SIDECAR_TOKEN", c.Engine.Token)
	c.Engine.TLS = getEnvBool("SIDECAR_TLS", c.Engine.TLS)
	c.Engine.Timeout = getEnvDuration("ENGINE_TIMEOUT", c.Engine.Timeout)
	c.Engine.StaticText = getEnv("ENGINE_STATIC_TEXT", c.Engine.StaticText)

	c.Gate.AcquireTimeout = getEnvDuration("GATE_ACQUIRE_TIMEOUT", c.Gate.AcquireTimeout)
	c.Gate.CallTimeout = getEnvDuration("GATE_CALL_TIMEOUT", c.Gate.CallTimeout)

	c.Staging.Mode = getEnv("STAGING_MODE", c.Staging.Mode)
	c.Staging.Dir = getEnv("STAGING_DIR", c.Staging.Dir)

	c.RateLimit.ConnectionsPerSecond = getEnvFloat("CONN_RATE", c.RateLimit.ConnectionsPerSecond)
	c.RateLimit.Burst = getEnvInt("CONN_BURST", c.RateLimit.Burst)

	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
}

func (c *Config) parseFlags(args []string, output io.Writer) error {
	fs := flag.NewFlagSet("parakeet-wyoming", flag.ContinueOnError)
	fs.SetOutput(output)

	var configFile string
	fs.StringVar(&configFile, "config", "", "path to a YAML config file")

	fs.StringVar(&c.Model, "model", c.Model, "model to load, or 'auto' for the default")
	fs.StringVar(&c.URI, "uri", c.URI, "unix:// or tcp:// URI to listen on")
	fs.Var(&listFlag{values: &c.DataDirs}, "data-dir", "data directory to check for downloaded models (repeatable)")
	fs.StringVar(&c.DownloadDir, "download-dir", c.DownloadDir, "directory to download models into (default: first data dir)")
	fs.StringVar(&c.Device, "device", c.Device, "device to use for inference")
	fs.StringVar(&c.Language, "language", c.Language, "default language to set for transcription")
	fs.Var(&listFlag{values: &c.Languages}, "model-language", "language advertised by the model (repeatable)")
	fs.StringVar(&c.Precision, "precision", c.Precision, "model precision (float32, float16, bfloat16)")
	fs.BoolVar(&c.LocalFilesOnly, "local-files-only", c.LocalFilesOnly, "do not download models")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "log DEBUG messages")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (json, text)")
	fs.BoolVar(&c.ShowVersion, "version", false, "print the version and exit")

	fs.StringVar(&c.ServerAddr, "http-addr", c.ServerAddr, "HTTP address for health, metrics and websocket; empty disables")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC health address; empty disables")
	fs.IntVar(&c.MaxAudioBytes, "max-audio-bytes", c.MaxAudioBytes, "maximum audio buffered for one transcription; zero disables")

	fs.StringVar(&c.Engine.Backend, "engine", c.Engine.Backend, "engine backend (grpc, http, static)")
	fs.StringVar(&c.Engine.Address, "engine-address", c.Engine.Address, "engine sidecar address")
	fs.DurationVar(&c.Engine.Timeout, "engine-timeout", c.Engine.Timeout, "timeout for one engine request")
	fs.DurationVar(&c.Gate.AcquireTimeout, "gate-timeout", c.Gate.AcquireTimeout, "maximum wait for the engine; zero waits forever")
	fs.DurationVar(&c.Gate.CallTimeout, "call-timeout", c.Gate.CallTimeout, "maximum duration of one transcription; zero disables")
	fs.StringVar(&c.Staging.Mode, "staging", c.Staging.Mode, "audio staging (tempdir, memory, none)")
	fs.StringVar(&c.Staging.Dir, "staging-dir", c.Staging.Dir, "parent directory for staged audio")
	fs.Float64Var(&c.RateLimit.ConnectionsPerSecond, "conn-rate", c.RateLimit.ConnectionsPerSecond, "accepted connections per second; zero disables")
	fs.IntVar(&c.RateLimit.Burst, "conn-burst", c.RateLimit.Burst, "connection burst allowance")
	fs.StringVar(&c.DatabaseDSN, "database-dsn", c.DatabaseDSN, "postgres DSN or sqlite file for the transcript journal")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address for transcript metrics")

	return fs.Parse(args)
}

func (c *Config) finalize() {
	if c.DownloadDir == "" && len(c.DataDirs) > 0 {
		c.DownloadDir = c.DataDirs[0]
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
	c.Language = info.ResolveLanguage(c.Language)
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := server.ParseURI(c.URI); err != nil {
		errs = append(errs, err)
	}
	if !validPrecisions[c.Precision] {
		errs = append(errs, fmt.Errorf("precision must be float32, float16 or bfloat16, got %q", c.Precision))
	}
	switch c.Engine.Backend {
	case transcription.BackendGRPC, transcription.BackendHTTP:
		if c.Engine.Address == "" {
			errs = append(errs, fmt.Errorf("engine address is required for the %s backend", c.Engine.Backend))
		}
	case transcription.BackendStatic:
	default:
		errs = append(errs, fmt.Errorf("unknown engine backend %q", c.Engine.Backend))
	}
	if _, err := audio.NewStager(c.Staging.Mode, c.Staging.Dir); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.LogFormat))
	}
	if c.MaxAudioBytes < 0 {
		errs = append(errs, errors.New("max-audio-bytes cannot be negative"))
	}
	if c.RateLimit.ConnectionsPerSecond < 0 {
		errs = append(errs, errors.New("conn-rate cannot be negative"))
	}

	return errors.Join(errs...)
}

// TranscriptionConfig maps the service settings onto the engine client.
func (c *Config) TranscriptionConfig() transcription.Config {
	modelID, _ := info.ResolveModel(c.Model)
	return transcription.Config{
		Backend:        c.Engine.Backend,
		Address:        c.Engine.Address,
		Token:          c.Engine.Token,
		Backoff:        c.Engine.Backoff,
		Timeout:        c.Engine.Timeout,
		Model:          modelID,
		Device:         c.Device,
		Precision:      c.Precision,
		DataDirs:       c.DataDirs,
		DownloadDir:    c.DownloadDir,
		LocalFilesOnly: c.LocalFilesOnly,
		StaticText:     c.Engine.StaticText,
	}
}

func (c *Config) InfoConfig() info.Config {
	_, name := info.ResolveModel(c.Model)
	return info.Config{
		ModelName: name,
		Languages: c.Languages,
		Version:   Version,
	}
}

type listFlag struct {
	values *[]string
	set    bool
}

func (f *listFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

// Set replaces the defaults on first use and appends afterwards.
func (f *listFlag) Set(v string) error {
	if !f.set {
		*f.values = nil
		f.set = true
	}
	*f.values = append(*f.values, v)
	return nil
}

func lookupFlag(args []string, name string) string {
	for i, arg := range args {
		trimmed := strings.TrimLeft(arg, "-")
		if trimmed == arg {
			continue
		}
		if v, ok := strings.CutPrefix(trimmed, name+"="); ok {
			return v
		}
		if trimmed == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
