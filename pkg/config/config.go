package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig                `yaml:"app"`
	Server   ServerConfig             `yaml:"server"`
	Tools    ToolsConfig              `yaml:"tools"`
	Executor ExecutorConfig           `yaml:"executor"`
	Policy   PolicyConfig             `yaml:"policy"`
	Gateways map[string]GatewayConfig `yaml:"gateways"`
	Audit    AuditConfig              `yaml:"audit"`
	Logging  LoggingConfig            `yaml:"logging"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Home string `yaml:"home"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// HubBuffer is the per-observer event queue length.
	HubBuffer int `yaml:"hub_buffer"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ToolsConfig struct {
	HelperPath    string   `yaml:"helper_path"`
	Launcher      []string `yaml:"launcher"`
	Headless      bool     `yaml:"headless"`
	ScreenshotDir string   `yaml:"screenshot_dir"`
	// Shell enables the shell tool; off by default.
	Shell bool `yaml:"shell"`
}

type ExecutorConfig struct {
	// StepTimeout of zero means tools own their timeouts.
	StepTimeout time.Duration `yaml:"step_timeout"`
	RetainRuns  int           `yaml:"retain_runs"`
}

type PolicyConfig struct {
	DeniedTools    []string `yaml:"denied_tools"`
	DeniedPatterns []string `yaml:"denied_patterns"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type AuditConfig struct {
	// DSN is a SQLite path; empty keeps the trail in memory.
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	// Path is the rotated jsonl event log; empty logs to the terminal only.
	Path string `yaml:"path"`
}

var (
	DefaultAllowedOrigins = []string{"http://localhost:1420", "tauri://localhost", "https://tauri.localhost"}
	DefaultDeniedPatterns = []string{`rm\s+-rf`, `\bmkfs\b`, `\bshutdown\b`, `\breboot\b`}
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		App: AppConfig{Name: "orbit", Home: home},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8765,
			AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
			HubBuffer:      64,
		},
		Tools: ToolsConfig{
			Headless:      true,
			ScreenshotDir: filepath.Join(os.TempDir(), "orbit-screenshots"),
		},
		Policy: PolicyConfig{
			DeniedPatterns: append([]string(nil), DefaultDeniedPatterns...),
		},
		Gateways: map[string]GatewayConfig{},
		Logging:  LoggingConfig{Path: filepath.Join("logs", "steps.jsonl")},
	}
}

// LoadConfig reads .env, then the YAML file at path (a missing file is not an
// error), then applies ORBIT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ORBIT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ORBIT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ORBIT_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ORBIT_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	if v := os.Getenv("ORBIT_HELPER_PATH"); v != "" {
		c.Tools.HelperPath = v
	}
	if v := os.Getenv("ORBIT_AUDIT_DSN"); v != "" {
		c.Audit.DSN = v
	}
	if v := os.Getenv("ORBIT_TELEGRAM_TOKEN"); v != "" {
		c.setGateway("telegram", v)
	}
	if v := os.Getenv("ORBIT_DISCORD_TOKEN"); v != "" {
		c.setGateway("discord", v)
	}
	return nil
}

func (c *Config) setGateway(name, token string) {
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	c.Gateways[name] = GatewayConfig{Token: token, Enabled: true}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.HubBuffer <= 0 {
		return fmt.Errorf("hub_buffer must be positive, got %d", c.Server.HubBuffer)
	}
	if c.Executor.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must not be negative, got %s", c.Executor.StepTimeout)
	}
	if c.Executor.RetainRuns < 0 {
		return fmt.Errorf("retain_runs must not be negative, got %d", c.Executor.RetainRuns)
	}
	return nil
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
