package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the resolved runtime configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURI is kept exactly as configured.
	RedirectURI string
	// CallbackAddr is the host:port the callback listener binds.
	CallbackAddr string
	// CallbackPath is the path component of RedirectURI.
	CallbackPath string

	PollInterval     time.Duration
	Debounce         time.Duration
	AuthTimeout      time.Duration
	TokenCache       string
	PrefsPath        string
	LogFile          string
	LogLevel         string
	StateWSAddr      string
	PlaylistPageSize int
}

// Options locate the configuration sources.
type Options struct {
	// SettingsPath is the TOML settings file; empty uses the default.
	SettingsPath string
	// EnvFile is a dotenv file; empty uses ./.env when present.
	EnvFile string
}

const (
	defaultSettingsPath     = "~/.config/spotigui/config.toml"
	defaultPrefsPath        = "~/.config/spotigui/prefs.toml"
	defaultEnvFile          = ".env"
	defaultTokenCache       = "~/.spotigui/token.json"
	defaultLogFile          = "~/.spotigui/spotigui.log"
	defaultLogLevel         = "info"
	defaultPollInterval     = time.Second
	defaultDebounce         = 300 * time.Millisecond
	defaultAuthTimeout      = 120 * time.Second
	defaultPlaylistPageSize = 6
	minPollInterval         = 200 * time.Millisecond
)

// Load reads the dotenv file, the process environment and the TOML settings,
// in that order of increasing precedence for credentials (environment beats
// dotenv) and returns a validated Config.
func Load(opts Options) (Config, error) {
	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(names ...string) string {
		for _, name := range names {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				return v
			}
			if v := strings.TrimSpace(dotenv[name]); v != "" {
				return v
			}
		}
		return ""
	}

	cfg := Config{
		ClientID:         lookup("CLIENT_ID", "SPOTIFY_CLIENT_ID"),
		ClientSecret:     lookup("CLIENT_SECRET", "SPOTIFY_CLIENT_SECRET"),
		RedirectURI:      lookup("REDIRECT_URI", "SPOTIFY_REDIRECT_URI"),
		PollInterval:     defaultPollInterval,
		Debounce:         defaultDebounce,
		AuthTimeout:      defaultAuthTimeout,
		TokenCache:       defaultTokenCache,
		PrefsPath:        defaultPrefsPath,
		LogFile:          defaultLogFile,
		LogLevel:         defaultLogLevel,
		PlaylistPageSize: defaultPlaylistPageSize,
	}

	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if cfg.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	callbackPort := lookup("CALLBACK_PORT", "SPOTIFY_CALLBACK_PORT")
	settings, err := readSettings(opts.SettingsPath)
	if err != nil {
		return Config{}, err
	}
	if err := settings.apply(&cfg); err != nil {
		return Config{}, err
	}
	if callbackPort == "" && settings.CallbackPort > 0 {
		callbackPort = strconv.Itoa(settings.CallbackPort)
	}

	cfg.CallbackAddr, cfg.CallbackPath, err = callbackEndpoint(cfg.RedirectURI, callbackPort)
	if err != nil {
		return Config{}, err
	}

	cfg.TokenCache = mustExpand(cfg.TokenCache)
	cfg.PrefsPath = mustExpand(cfg.PrefsPath)
	if cfg.LogFile != "" {
		cfg.LogFile = mustExpand(cfg.LogFile)
	}
	return cfg, nil
}

// TokenCachePath resolves the token cache location from the settings file
// alone. Credentials are not required.
func TokenCachePath(settingsPath string) (string, error) {
	settings, err := readSettings(settingsPath)
	if err != nil {
		return "", err
	}
	path := defaultTokenCache
	if v := strings.TrimSpace(settings.TokenCache); v != "" {
		path = v
	}
	return expandPath(path)
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

type settingsFile struct {
	PollInterval     string `toml:"poll_interval"`
	Debounce         string `toml:"debounce"`
	AuthTimeout      string `toml:"auth_timeout"`
	TokenCache       string `toml:"token_cache"`
	PrefsPath        string `toml:"prefs_path"`
	LogFile          string `toml:"log_file"`
	LogLevel         string `toml:"log_level"`
	StateWSAddr      string `toml:"state_ws_addr"`
	PlaylistPageSize int    `toml:"playlist_page_size"`
	CallbackPort     int    `toml:"callback_port"`
}

func readSettings(path string) (settingsFile, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return settingsFile{}, err
	}
	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settingsFile{}, nil
		}
		return settingsFile{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return settingsFile{}, fmt.Errorf("read config: %w", err)
	}
	var raw settingsFile
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return settingsFile{}, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

func (s settingsFile) apply(cfg *Config) error {
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"poll_interval", s.PollInterval, &cfg.PollInterval},
		{"debounce", s.Debounce, &cfg.Debounce},
		{"auth_timeout", s.AuthTimeout, &cfg.AuthTimeout},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.value)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("parse config: %s must be positive", d.name)
		}
		*d.dst = parsed
	}
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}

	if v := strings.TrimSpace(s.TokenCache); v != "" {
		cfg.TokenCache = v
	}
	if v := strings.TrimSpace(s.PrefsPath); v != "" {
		cfg.PrefsPath = v
	}
	if v := strings.TrimSpace(s.LogFile); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(s.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	cfg.StateWSAddr = strings.TrimSpace(s.StateWSAddr)
	if s.PlaylistPageSize > 0 {
		cfg.PlaylistPageSize = s.PlaylistPageSize
	}
	return nil
}

// callbackEndpoint derives the listener address from the redirect URI. Loopback
// and IP literal hosts are bound directly; a DNS name (a public tunnel) is
// served on loopback. portOverride wins over the URI's port.
func callbackEndpoint(redirect, portOverride string) (string, string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", "", fmt.Errorf("parse REDIRECT_URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", fmt.Errorf("REDIRECT_URI must use http or https, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("REDIRECT_URI has no host")
	}

	port := strings.TrimSpace(portOverride)
	if port == "" {
		port = u.Port()
	}
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", "", fmt.Errorf("invalid callback port %q", port)
	}

	bindHost := host
	if host != "localhost" && net.ParseIP(host) == nil {
		bindHost = "127.0.0.1"
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return net.JoinHostPort(bindHost, port), path, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultSettingsPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
