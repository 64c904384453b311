package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// EnvPath overrides the config file location.
const EnvPath = "DATADETECTOR_CONFIG"

const (
	BackendTextcheck = "textcheck"
	BackendEntityx   = "entityx"

	AuditJSONL  = "jsonl"
	AuditSQLite = "sqlite"
	AuditOff    = "off"

	defaultAddr      = "127.0.0.1:8088"
	defaultAuditFile = "~/.datadetector/audit.jsonl"
	defaultAuditDB   = "~/.datadetector/audit.db"
	defaultModels    = "~/.datadetector/models"
)

type Config struct {
	Backend  string        `yaml:"backend"`
	Language string        `yaml:"language"`
	Timezone string        `yaml:"timezone"`
	Server   ServerConfig  `yaml:"server"`
	Entityx  EntityxConfig `yaml:"entityx"`
	Audit    AuditConfig   `yaml:"audit"`
	Log      LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxRequestBytes int           `yaml:"max_request_bytes"`
	// Offsets is the unit used when a request does not pick one.
	Offsets string `yaml:"offsets"`
}

type EntityxConfig struct {
	ModelsRoot string `yaml:"models_root"`
	// Registry is an optional registry file replacing the embedded one.
	Registry string    `yaml:"registry"`
	MaxBytes int       `yaml:"max_bytes"`
	NER      NERConfig `yaml:"ner"`
}

type NERConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinScore  float64 `yaml:"min_score"`
	TimeoutMS int     `yaml:"timeout_ms"`
	SeqLen    int     `yaml:"seq_len"`
}

func (n NERConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutMS) * time.Millisecond
}

type AuditConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func Default() Config {
	return Config{
		Backend:  BackendTextcheck,
		Language: "en-US",
		Timezone: "UTC",
		Server: ServerConfig{
			Addr:            defaultAddr,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			MaxRequestBytes: 1 << 20,
			Offsets:         "utf16",
		},
		Entityx: EntityxConfig{
			ModelsRoot: defaultModels,
			MaxBytes:   64 * 1024,
			NER: NERConfig{
				MinScore:  0.6,
				TimeoutMS: 250,
				SeqLen:    256,
			},
		},
		Audit: AuditConfig{Driver: AuditJSONL, Path: defaultAuditFile},
		Log:   LogConfig{Format: "text"},
	}
}

// ConfigPath is $DATADETECTOR_CONFIG or ~/.datadetector/config.yaml.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return expandHome(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".datadetector", "config.yaml"), nil
}

// AppDir holds the config file, pid file and daemon log.
func AppDir() (string, error) {
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(p), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and expands ~/ in paths.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.MaxRequestBytes <= 0 {
		c.Server.MaxRequestBytes = def.Server.MaxRequestBytes
	}
	if c.Server.Offsets == "" {
		c.Server.Offsets = def.Server.Offsets
	}
	if c.Entityx.ModelsRoot == "" {
		c.Entityx.ModelsRoot = def.Entityx.ModelsRoot
	}
	if c.Entityx.MaxBytes <= 0 {
		c.Entityx.MaxBytes = def.Entityx.MaxBytes
	}
	if c.Entityx.NER.SeqLen <= 0 {
		c.Entityx.NER.SeqLen = def.Entityx.NER.SeqLen
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = def.Audit.Driver
	}
	if c.Audit.Path == "" {
		switch c.Audit.Driver {
		case AuditSQLite:
			c.Audit.Path = defaultAuditDB
		default:
			c.Audit.Path = defaultAuditFile
		}
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	c.Entityx.ModelsRoot = expandHome(c.Entityx.ModelsRoot)
	c.Entityx.Registry = expandHome(c.Entityx.Registry)
	c.Audit.Path = expandHome(c.Audit.Path)
	c.Log.File = expandHome(c.Log.File)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendTextcheck, BackendEntityx:
	default:
		errs = append(errs, fmt.Errorf("backend: unknown %q (want %s or %s)", c.Backend, BackendTextcheck, BackendEntityx))
	}
	if _, err := language.Parse(c.Language); err != nil {
		errs = append(errs, fmt.Errorf("language: %w", err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	switch c.Audit.Driver {
	case AuditJSONL, AuditSQLite, AuditOff:
	default:
		errs = append(errs, fmt.Errorf("audit.driver: unknown %q", c.Audit.Driver))
	}
	switch c.Server.Offsets {
	case "bytes", "runes", "utf16":
	default:
		errs = append(errs, fmt.Errorf("server.offsets: unknown %q", c.Server.Offsets))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown %q", c.Log.Format))
	}
	if s := c.Entityx.NER.MinScore; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("entityx.ner.min_score: %v outside [0,1]", s))
	}
	return errors.Join(errs...)
}

// Location is the zone dates are rendered in.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Region is the ISO 3166 region implied by the language tag, used as the
// default phone region. "en" resolves to "US".
func (c Config) Region() string {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return "US"
	}
	region, conf := tag.Region()
	if conf == language.No {
		return "US"
	}
	return region.String()
}

// Save writes cfg as YAML, creating the directory.
func Save(path string, cfg Config) error {
	if err := EnsureConfigDir(path); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func EnsureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
