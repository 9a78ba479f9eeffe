package platform_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/flashpad/internal/platform"
	"github.com/aretw0/flashpad/pkg/adapters/fs"
	"github.com/aretw0/flashpad/pkg/adapters/memory"
	"github.com/aretw0/flashpad/pkg/backup"
	"github.com/aretw0/flashpad/pkg/core"
)

func boolPtr(b bool) *bool { return &b }

func TestInit(t *testing.T) {
	t.Run("AutoInit Creates Layout Without Git", func(t *testing.T) {
		vaultPath := filepath.Join(t.TempDir(), "vault")

		repo, err := platform.Init(vaultPath, platform.WithAutoInit(true), platform.WithForceTemp(true))
		require.NoError(t, err)

		fsRepo, ok := repo.(*fs.Repository)
		require.True(t, ok, "expected fs repository")
		assert.Equal(t, vaultPath, fsRepo.Path)

		assert.DirExists(t, filepath.Join(vaultPath, "notes"))
		assert.DirExists(t, filepath.Join(vaultPath, ".flashpad"))
		assert.NoDirExists(t, filepath.Join(vaultPath, ".git"))
	})

	t.Run("Versioning Creates Git Repo", func(t *testing.T) {
		if !fs.IsGitInstalled() {
			t.Skip("git not installed")
		}
		vaultPath := filepath.Join(t.TempDir(), "versioned")

		_, err := platform.Init(vaultPath, platform.WithAutoInit(true), platform.WithVersioning(true))
		require.NoError(t, err)
		assert.DirExists(t, filepath.Join(vaultPath, ".git"))
	})

	t.Run("MustExist Fails If Directory Missing", func(t *testing.T) {
		vaultPath := filepath.Join(t.TempDir(), "missing")
		_, err := platform.Init(vaultPath, platform.WithMustExist(true))
		assert.Error(t, err)
	})

	t.Run("Unknown Adapter", func(t *testing.T) {
		_, err := platform.Init(t.TempDir(), platform.WithAdapter("s3"))
		assert.ErrorContains(t, err, "unknown adapter")
	})

	t.Run("Injected Repository", func(t *testing.T) {
		injected := memory.NewRepository()
		repo, err := platform.Init("ignored", platform.WithRepository(injected))
		require.NoError(t, err)
		assert.Same(t, injected, repo)
	})
}

func TestResolve(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := platform.Resolve(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "fs", cfg.Adapter)
		assert.Equal(t, fs.DefaultSystemDir, cfg.SystemDir)
		assert.Equal(t, backup.DefaultBatchSize, cfg.ExportBatchSize)
		assert.False(t, cfg.Versioned)
	})

	t.Run("Detects Existing Git Repo", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))

		cfg, err := platform.Resolve(dir)
		require.NoError(t, err)
		assert.True(t, cfg.Versioned)
	})

	t.Run("Settings File Fills Gaps", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
		require.NoError(t, platform.SaveSettings(dir, platform.Settings{
			Versioning:      boolPtr(false),
			SystemDir:       ".meta",
			ExportBatchSize: 10,
		}))

		cfg, err := platform.Resolve(dir)
		require.NoError(t, err)
		assert.False(t, cfg.Versioned, "settings beat auto-detection")
		assert.Equal(t, ".meta", cfg.SystemDir)
		assert.Equal(t, 10, cfg.ExportBatchSize)

		cfg, err = platform.Resolve(dir,
			platform.WithVersioning(true),
			platform.WithSystemDir(".other"),
			platform.WithExportBatchSize(3),
		)
		require.NoError(t, err)
		assert.True(t, cfg.Versioned, "options beat settings")
		assert.Equal(t, ".other", cfg.SystemDir)
		assert.Equal(t, 3, cfg.ExportBatchSize)
	})

	t.Run("Broken Settings File", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, platform.SettingsFile), []byte("versioning: [nope"), 0644))
		_, err := platform.Resolve(dir)
		assert.Error(t, err)
	})

	t.Run("Memory Adapter Skips Filesystem", func(t *testing.T) {
		cfg, err := platform.Resolve("scratch", platform.WithAdapter("memory"), platform.WithExportBatchSize(7))
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Adapter)
		assert.Equal(t, 7, cfg.ExportBatchSize)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("Filesystem Vault Persists", func(t *testing.T) {
		vaultPath := filepath.Join(t.TempDir(), "vault")

		svc, err := platform.New(vaultPath, platform.WithAutoInit(true))
		require.NoError(t, err)
		require.Len(t, svc.AllNotes(), 1, "fresh vault gets a default note")

		require.NoError(t, svc.UpdateNote(ctx, svc.ActiveNoteID(), core.NotePatch{Title: core.StringPtr("Kept")}))

		reopened, err := platform.New(vaultPath)
		require.NoError(t, err)
		notes := reopened.AllNotes()
		require.Len(t, notes, 1)
		assert.Equal(t, "Kept", notes[0].Title)

		state := reopened.State().(core.ServiceState)
		assert.Equal(t, "fs", state.RepositoryType)
		assert.True(t, state.Transactional)
	})

	t.Run("Memory Adapter", func(t *testing.T) {
		svc, err := platform.New("", platform.WithAdapter("memory"), platform.WithIDGenerator(func() string { return "only" }))
		require.NoError(t, err)

		active, ok := svc.ActiveNote()
		require.True(t, ok)
		assert.Equal(t, "only", active.ID)
		assert.Equal(t, "memory", svc.State().(core.ServiceState).RepositoryType)
	})
}

func TestVaultPath(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".flashpad"), 0755))

	t.Setenv(platform.EnvVault, "")
	assert.Equal(t, "/explicit", platform.VaultPath("/explicit", nested))
	assert.Equal(t, root, platform.VaultPath("", nested))

	lonely := t.TempDir()
	assert.Equal(t, lonely, platform.VaultPath("", lonely))

	t.Setenv(platform.EnvVault, "/from/env")
	assert.Equal(t, "/from/env", platform.VaultPath("", nested))
	assert.Equal(t, "/explicit", platform.VaultPath("/explicit", nested))
}
