package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. DUALCAM_STREAM_FPS.
const EnvPrefix = "DUALCAM"

// Manager handles configuration
type Manager struct {
	fs         afero.Fs
	configPath string
	v          *viper.Viper

	mu     sync.RWMutex
	config *Config
}

// DefaultPath returns $HOME/.config/dualcam/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "dualcam", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, from the
// OS filesystem. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	if configFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configFile = p
	}
	return NewManagerFs(afero.NewOsFs(), configFile)
}

// NewManagerFs is NewManager on an arbitrary filesystem.
func NewManagerFs(fs afero.Fs, configPath string) (*Manager, error) {
	if err := fs.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{fs: fs, configPath: configPath}

	exists, err := afero.Exists(fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	if !exists {
		logger.WithComponent("config").Info().
			Str("path", configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("driver", m.config.Device.Driver).
		Int("heads", len(m.config.Heads)).
		Msg("Config loaded")
	return m, nil
}

// load reads the file through viper so environment variables and bound
// flags override it. Keys missing from the file keep their defaults.
func (m *Manager) load() error {
	v := viper.New()
	v.SetFs(m.fs)
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Seed every key so env overrides work for keys absent from the file.
	defaults, err := toMap(Defaults())
	if err != nil {
		return err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.v = v
	return m.apply()
}

// apply decodes viper's merged view into a new Config. Defaults are
// already seeded in viper, so decoding starts from zero values and lists
// from the file replace the default lists.
func (m *Manager) apply() error {
	cfg := &Config{}
	if err := m.v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Heads == nil {
		cfg.Heads = []HeadConfig{}
	}
	if cfg.Overlay.Labels == nil {
		cfg.Overlay.Labels = []LabelConfig{}
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

func toMap(cfg *Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	out := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return out, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Heads = append([]HeadConfig(nil), m.config.Heads...)
	cfg.Overlay.Labels = append([]LabelConfig(nil), m.config.Overlay.Labels...)
	return &cfg
}

// GetViper returns the viper instance backing the manager.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// BindFlag makes a command-line flag override key when the flag is set.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	if err := m.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
	}
	if !flag.Changed {
		return nil
	}
	return m.apply()
}

// Set changes one dotted key, validates the result and saves it.
func (m *Manager) Set(key, value string) error {
	if !m.v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	m.v.Set(key, value)
	err := m.apply()
	if err == nil {
		if verr := m.Get().Validate(); verr != nil {
			err = fmt.Errorf("invalid value for %s: %w", key, verr)
		}
	}
	if err != nil {
		// Drop the override by reloading what is on disk.
		if lerr := m.load(); lerr != nil {
			logger.WithComponent("config").Warn().Err(lerr).Msg("Failed to reload config")
		}
		return err
	}
	return m.Save()
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := m.fs.MkdirAll(filepath.Dir(m.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(m.fs, m.configPath, data, 0o644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the configuration and saves it.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	if err := m.Save(); err != nil {
		return err
	}
	return m.load()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	return m.Set("server_port", fmt.Sprint(port))
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
