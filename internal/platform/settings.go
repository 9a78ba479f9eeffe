package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SettingsFile is the optional per-vault settings file.
const SettingsFile = "flashpad.yaml"

// EnvVault names the environment variable the CLI reads the vault path from.
const EnvVault = "FLASHPAD_VAULT"

// Settings mirrors flashpad.yaml. Unset fields leave the defaults alone.
type Settings struct {
	Versioning      *bool  `yaml:"versioning,omitempty"`
	SystemDir       string `yaml:"system_dir,omitempty"`
	ExportBatchSize int    `yaml:"export_batch_size,omitempty"`
}

// LoadSettings reads flashpad.yaml from the vault directory. A missing file
// yields zero Settings and no error.
func LoadSettings(vaultPath string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(filepath.Join(vaultPath, SettingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", SettingsFile, err)
	}
	if s.ExportBatchSize < 0 {
		return s, fmt.Errorf("%s: export_batch_size must be positive", SettingsFile)
	}
	return s, nil
}

// SaveSettings writes s to flashpad.yaml in the vault directory.
func SaveSettings(vaultPath string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(vaultPath, SettingsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SettingsFile, err)
	}
	return nil
}

// VaultPath picks the vault location for the CLI: the explicit flag, then
// $FLASHPAD_VAULT, then the nearest enclosing vault root, then cwd.
func VaultPath(flag, cwd string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvVault); env != "" {
		return env
	}
	if root, err := FindRoot(cwd); err == nil {
		return root
	}
	return cwd
}
