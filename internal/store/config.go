package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rabbithole/internal/layout"
)

const DefaultAddr = "127.0.0.1:7717"

// Spacing overrides a layout variant's preset. Zero fields keep the preset.
type Spacing struct {
	Horizontal float64 `json:"horizontal,omitempty"`
	Vertical   float64 `json:"vertical,omitempty"`
}

type Config struct {
	AutoSaveDebounceMs int                `json:"autoSaveDebounceMs,omitempty"`
	Addr               string             `json:"addr,omitempty"`
	LogLevel           string             `json:"logLevel,omitempty"`
	Spacing            map[string]Spacing `json:"spacing,omitempty"`
}

// AutoSaveDebounce returns the configured quiet period, or 0 for the default.
func (c *Config) AutoSaveDebounce() time.Duration {
	if c == nil || c.AutoSaveDebounceMs <= 0 {
		return 0
	}
	return time.Duration(c.AutoSaveDebounceMs) * time.Millisecond
}

func (c *Config) ListenAddr() string {
	if c == nil || strings.TrimSpace(c.Addr) == "" {
		return DefaultAddr
	}
	return strings.TrimSpace(c.Addr)
}

// LayoutOptions returns the variant preset with any configured overrides.
func (c *Config) LayoutOptions(v layout.Variant) layout.Options {
	opts := layout.Options{Variant: v}
	if c != nil {
		if sp, ok := c.Spacing[string(v)]; ok {
			opts.HorizontalSpacing = sp.Horizontal
			opts.VerticalSpacing = sp.Vertical
		}
	}
	return opts.WithDefaults()
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.rabbithole).
	if v := strings.TrimSpace(os.Getenv("RABBITHOLE_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rabbithole"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func atomicWriteFile(dir, tmpPattern, path string, b []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, perm)
	return os.Rename(tmp, path)
}

func SaveConfig(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// Unique temp name so the service and a CLI call writing at once cannot interleave.
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}
