package flashpad

import (
	"log/slog"
	"time"

	"github.com/aretw0/flashpad/internal/platform"
	"github.com/aretw0/flashpad/pkg/core"
)

// --- Configuration ---

// Option defines a functional option for configuring Flashpad.
type Option = platform.Option

// Config is the resolved configuration of a vault.
type Config = platform.Config

// Settings mirrors the optional flashpad.yaml file of a vault.
type Settings = platform.Settings

// WithAutoInit creates the vault directory (and git repo when versioned) if missing.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithVersioning enables or disables git versioning of the vault.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithMustExist ensures the vault directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom storage adapter.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter selects the storage adapter by name ("fs" or "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSystemDir sets the hidden directory name (e.g. ".flashpad").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithReadOnly opens the vault without allowing writes.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDevSafety controls the `go run` sandbox.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithExportBatchSize sets how many notes are written per backup flush.
func WithExportBatchSize(n int) Option {
	return platform.WithExportBatchSize(n)
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// WithIDGenerator overrides how note ids are generated.
func WithIDGenerator(fn func() string) Option {
	return platform.WithIDGenerator(fn)
}

// --- Factory ---

// New creates a ready Flashpad Service.
func New(path string, opts ...Option) (*core.Service, error) {
	return platform.New(path, opts...)
}

// Init initializes a repository explicitly.
func Init(path string, opts ...Option) (core.Repository, error) {
	return platform.Init(path, opts...)
}

// Resolve returns the configuration New would use for path.
func Resolve(path string, opts ...Option) (Config, error) {
	return platform.Resolve(path, opts...)
}

// --- Safety & Utils ---

// ResolveVaultPath determines the actual path for the vault based on safety rules.
func ResolveVaultPath(userPath string, forceTemp bool) string {
	return platform.ResolveVaultPath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindVaultRoot recursively looks upwards for a vault root indicator.
func FindVaultRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// VaultPath picks the vault location from a flag, $FLASHPAD_VAULT or the
// enclosing vault root.
func VaultPath(flag, cwd string) string {
	return platform.VaultPath(flag, cwd)
}

// LoadSettings reads flashpad.yaml from a vault directory.
func LoadSettings(vaultPath string) (Settings, error) {
	return platform.LoadSettings(vaultPath)
}

// SaveSettings writes flashpad.yaml into a vault directory.
func SaveSettings(vaultPath string, s Settings) error {
	return platform.SaveSettings(vaultPath, s)
}

// --- Semantic Change Reasons ---

const (
	CommitTypeFeat     = platform.CommitTypeFeat
	CommitTypeFix      = platform.CommitTypeFix
	CommitTypeDocs     = platform.CommitTypeDocs
	CommitTypeRefactor = platform.CommitTypeRefactor
	CommitTypeChore    = platform.CommitTypeChore
)

// FormatChangeReason builds a Conventional Commit message.
func FormatChangeReason(ctype, scope, subject, body string) string {
	return platform.FormatChangeReason(ctype, scope, subject, body)
}
