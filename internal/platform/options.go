package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/flashpad/pkg/core"
)

// options holds the internal configuration for a Flashpad vault.
type options struct {
	repository core.Repository
	logger     *slog.Logger
	adapter    string
	now        func() time.Time
	newID      func() string
	// config keeps only what the caller set explicitly, so settings from
	// flashpad.yaml can fill the gaps.
	config map[string]any
}

// Option defines a functional option for configuring Flashpad.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: "fs",
		config:  make(map[string]any),
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithAutoInit creates the vault directory (and git repo when versioned)
// if it does not exist yet.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithVersioning enables or disables git versioning of the vault.
// When not set, flashpad.yaml decides, and failing that the vault is
// versioned only if it already contains a .git directory.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["versioning"] = enabled
	}
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithMustExist ensures the vault directory must already exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithLogger sets the logger for the service and the adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository injects a custom storage adapter. If provided, the adapter
// named by WithAdapter is not built.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithAdapter selects the storage adapter by name: "fs" (default) or
// "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithSystemDir sets the hidden directory name. Defaults to ".flashpad".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Write operations return core.ErrReadOnly.
// 2. Initialization (Mkdir, git init) is skipped.
// 3. Index updates are not persisted to disk.
// 4. The dev sandbox is bypassed (uses the real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or
// `go test`. By default (true) the vault is redirected into a temporary
// directory to prevent accidental data loss.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithExportBatchSize sets how many notes the backup writer emits per flush.
func WithExportBatchSize(n int) Option {
	return func(o *options) {
		o.config["export_batch_size"] = n
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator overrides how the service generates note ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}

func (o *options) boolOr(key string, fallback bool) bool {
	if v, ok := o.config[key].(bool); ok {
		return v
	}
	return fallback
}
