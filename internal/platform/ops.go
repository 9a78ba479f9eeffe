package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/flashpad/pkg/adapters/fs"
	"github.com/aretw0/flashpad/pkg/adapters/memory"
	"github.com/aretw0/flashpad/pkg/backup"
	"github.com/aretw0/flashpad/pkg/core"
)

// Config is the fully resolved configuration of a vault: explicit options
// first, then flashpad.yaml, then defaults.
type Config struct {
	Adapter         string
	Path            string
	AutoInit        bool
	MustExist       bool
	Versioned       bool
	ReadOnly        bool
	Sandboxed       bool
	SystemDir       string
	ExportBatchSize int
}

// Resolve computes the configuration New and Init would use for uri.
func Resolve(uri string, opts ...Option) (Config, error) {
	return resolve(uri, buildOptions(opts))
}

func resolve(uri string, o *options) (Config, error) {
	cfg := Config{
		Adapter:         o.adapter,
		AutoInit:        o.boolOr("auto_init", false),
		ReadOnly:        o.boolOr("read_only", false),
		SystemDir:       fs.DefaultSystemDir,
		ExportBatchSize: backup.DefaultBatchSize,
	}
	if n, ok := o.config["export_batch_size"].(int); ok && n > 0 {
		cfg.ExportBatchSize = n
	}

	switch o.adapter {
	case "memory":
		cfg.Path = uri
		return cfg, nil
	case "fs":
	default:
		return Config{}, fmt.Errorf("unknown adapter: %s", o.adapter)
	}

	// Bypass the sandbox when read-only (inherently safe) or when the
	// caller explicitly disabled it.
	bypassSafety := cfg.ReadOnly || !o.boolOr("dev_safety", true)
	cfg.Sandboxed = o.boolOr("temp_dir", false) || (IsDevRun() && !bypassSafety)
	cfg.Path = ResolveVaultPath(uri, cfg.Sandboxed)
	cfg.MustExist = o.boolOr("must_exist", false) || (!cfg.AutoInit && !cfg.Sandboxed)

	settings, err := LoadSettings(cfg.Path)
	if err != nil {
		return Config{}, err
	}

	if dir, ok := o.config["system_dir"].(string); ok && dir != "" {
		cfg.SystemDir = dir
	} else if settings.SystemDir != "" {
		cfg.SystemDir = settings.SystemDir
	}

	if _, ok := o.config["export_batch_size"].(int); !ok && settings.ExportBatchSize > 0 {
		cfg.ExportBatchSize = settings.ExportBatchSize
	}

	switch v, ok := o.config["versioning"].(bool); {
	case ok:
		cfg.Versioned = v
	case settings.Versioning != nil:
		cfg.Versioned = *settings.Versioning
	default:
		// Auto-detect: a vault is versioned when it already is a git repo.
		_, err := os.Stat(filepath.Join(cfg.Path, ".git"))
		cfg.Versioned = err == nil
	}

	return cfg, nil
}

// Init builds the configured repository and prepares its storage.
// The uri argument is adapter-specific (a directory for "fs", a label for
// "memory").
func Init(uri string, opts ...Option) (core.Repository, error) {
	o := buildOptions(opts)

	if o.repository != nil {
		if err := o.repository.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return o.repository, nil
	}

	cfg, err := resolve(uri, o)
	if err != nil {
		return nil, err
	}

	repo := build(cfg, o)
	if err := repo.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func build(cfg Config, o *options) core.Repository {
	if cfg.Adapter == "memory" {
		return memory.NewRepository()
	}

	if o.logger != nil {
		switch {
		case cfg.Sandboxed:
			o.logger.Warn("running in SAFE MODE (dev sandbox enabled)", "resolved_path", cfg.Path)
		case IsDevRun() && cfg.ReadOnly:
			o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", cfg.Path)
		case IsDevRun():
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", cfg.Path)
		}
		o.logger.Debug("opening vault", "path", cfg.Path, "versioned", cfg.Versioned, "read_only", cfg.ReadOnly)
	}

	return fs.NewRepository(fs.Config{
		Path:      cfg.Path,
		AutoInit:  cfg.AutoInit,
		MustExist: cfg.MustExist,
		Versioned: cfg.Versioned,
		ReadOnly:  cfg.ReadOnly,
		SystemDir: cfg.SystemDir,
		Logger:    o.logger,
	})
}
