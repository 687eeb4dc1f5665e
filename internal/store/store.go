package store

import (
	"os"
	"path/filepath"
	"strings"
)

const sqliteFileName = "rabbithole.sqlite"

// Store persists the live session and the saved trees under Dir.
// The zero value is not usable; Dir must be set.
type Store struct {
	Dir string
}

// DefaultDir returns the data directory: $RABBITHOLE_DIR if set, otherwise
// <config dir>/data.
func DefaultDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("RABBITHOLE_DIR")); v != "" {
		return v, nil
	}
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, "data"), nil
}

func (s Store) Ensure() error {
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) sqlitePath() string {
	return filepath.Join(s.Dir, sqliteFileName)
}
