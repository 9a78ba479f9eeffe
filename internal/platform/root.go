package platform

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/aretw0/flashpad/pkg/adapters/fs"
)

// ErrRootNotFound is returned by FindRoot when no vault encloses the start dir.
var ErrRootNotFound = errors.New("vault root not found")

// FindRoot recursively looks upwards for a vault root indicator.
// Indicators are the .flashpad system directory or a flashpad.yaml file.
// If found, returns the absolute path to the root.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, fs.DefaultSystemDir) || hasFile(dir, SettingsFile) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", ErrRootNotFound
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
