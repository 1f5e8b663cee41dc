package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Client      ClientConfig      `toml:"client"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials used by the backend.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
	APIURL       string `toml:"api_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains backend HTTP server settings.
type ServerConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	FrontendURL    string  `toml:"frontend_url"`
	SessionSecret  string  `toml:"session_secret"`
	SessionTTL     string  `toml:"session_ttl"`
	RequestTimeout string  `toml:"request_timeout"`
	RateLimit      float64 `toml:"rate_limit"`
	RateBurst      int     `toml:"rate_burst"`
}

// ClientConfig contains settings for the CLI side of the token lifecycle.
type ClientConfig struct {
	BackendURL     string `toml:"backend_url"`
	TokenFile      string `toml:"token_file"`
	RequestTimeout string `toml:"request_timeout"`
	AuthTimeout    string `toml:"auth_timeout"`
}

// Addr returns the host:port pair the backend listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TTL returns the lifetime of local session tokens.
func (s ServerConfig) TTL() time.Duration {
	return parseDuration(s.SessionTTL, 24*time.Hour)
}

// Timeout returns the bound applied to each call the backend makes to the provider.
func (s ServerConfig) Timeout() time.Duration {
	return parseDuration(s.RequestTimeout, 10*time.Second)
}

// FrontendAddr returns the host:port of the frontend root, which the CLI serves on loopback.
func (s ServerConfig) FrontendAddr() (string, error) {
	u, err := url.Parse(s.FrontendURL)
	if err != nil {
		return "", fmt.Errorf("%w: frontend_url: %v", ErrInvalidConfig, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: frontend_url has no host", ErrInvalidConfig)
	}
	return u.Host, nil
}

// Timeout returns the bound applied to each proxied API call.
func (c ClientConfig) Timeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

// WaitTimeout returns how long the CLI waits for the browser authorization to complete.
func (c ClientConfig) WaitTimeout() time.Duration {
	return parseDuration(c.AuthTimeout, 2*time.Minute)
}

// TokenPath returns the token file path with a leading ~ expanded.
func (c ClientConfig) TokenPath() string {
	return ExpandHome(c.TokenFile)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values from the environment (and a .env file, if present) override the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides secrets from the environment. A .env file in the working directory is loaded first.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v := os.Getenv("SOUNDCHECK_SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("SOUNDCHECK_BACKEND_URL"); v != "" {
		c.Client.BackendURL = v
	}
}

// Validate reports whether the backend can be started with this configuration.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if len(c.Server.SessionSecret) < 16 {
		return fmt.Errorf("%w: session_secret must be at least 16 characters", ErrInvalidConfig)
	}
	if _, err := c.Server.FrontendAddr(); err != nil {
		return err
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, os.ErrExist)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading "~/" with the current user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
