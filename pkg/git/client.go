// Package git drives the git CLI for versioned vaults.
package git

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Fallback identity used when neither git config nor the environment
// provides one, so commits never fail on a fresh machine.
const (
	fallbackName  = "flashpad"
	fallbackEmail = "flashpad@localhost"
)

// Client wraps git command execution with a file-based lock for process safety.
type Client struct {
	WorkDir  string
	Logger   *slog.Logger
	lockPath string
}

// NewClient creates a new git client for the given working directory.
// lockName is the lock file created inside workDir while a write is in
// progress.
func NewClient(workDir, lockName string, logger *slog.Logger) *Client {
	if lockName == "" {
		lockName = ".flashpad.lock"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		WorkDir:  workDir,
		Logger:   logger,
		lockPath: lockName,
	}
}

// IsInstalled reports whether a git binary is on PATH.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// LockName returns the lock file name relative to WorkDir.
func (c *Client) LockName() string {
	return c.lockPath
}

// Lock acquires the file lock, blocking until it is free or timeout passes.
func (c *Client) Lock() (func(), error) {
	return c.LockWithTimeout(30 * time.Second)
}

// LockWithTimeout is Lock with an explicit upper bound on waiting.
func (c *Client) LockWithTimeout(timeout time.Duration) (func(), error) {
	fullLockPath := filepath.Join(c.WorkDir, c.lockPath)
	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(fullLockPath, os.O_CREATE|os.O_EXCL, 0666)
		if err == nil {
			f.Close()
			return func() {
				os.Remove(fullLockPath)
			}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock %s", fullLockPath)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Run executes a raw git command in the working directory.
// It does NOT acquire the lock; callers manage that via Lock.
func (c *Client) Run(args ...string) (string, error) {
	c.Logger.Debug("executing git", "args", args, "dir", c.WorkDir)

	cmd := c.command(args...)
	out, err := cmd.CombinedOutput()
	output := string(out)

	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, output)
	}

	return strings.TrimSpace(output), nil
}

func (c *Client) command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.WorkDir
	cmd.Env = os.Environ()
	if len(args) == 0 || args[0] != "commit" || c.hasIdentity() {
		return cmd
	}
	for key, val := range map[string]string{
		"GIT_AUTHOR_NAME":     fallbackName,
		"GIT_AUTHOR_EMAIL":    fallbackEmail,
		"GIT_COMMITTER_NAME":  fallbackName,
		"GIT_COMMITTER_EMAIL": fallbackEmail,
	} {
		if os.Getenv(key) == "" {
			cmd.Env = append(cmd.Env, key+"="+val)
		}
	}
	return cmd
}

// hasIdentity reports whether git config already names a user.
func (c *Client) hasIdentity() bool {
	cmd := exec.Command("git", "config", "user.email")
	cmd.Dir = c.WorkDir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) != ""
}

// IsRepo reports whether WorkDir is the top level of a git repository.
func (c *Client) IsRepo() bool {
	_, err := os.Stat(filepath.Join(c.WorkDir, ".git"))
	return err == nil
}

// Init initializes a new git repository. Re-running is safe.
func (c *Client) Init() error {
	_, err := c.Run("init")
	return err
}

// Add adds files to the stage.
func (c *Client) Add(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, files...)
	_, err := c.Run(args...)
	return err
}

// Rm removes files from the index. Files already gone from the working tree
// are fine.
func (c *Client) Rm(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"rm", "-f", "--cached", "--ignore-unmatch", "--quiet", "--"}, files...)
	_, err := c.Run(args...)
	return err
}

// Reset unstages files, leaving the working tree alone.
func (c *Client) Reset(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"reset", "-q", "--"}, files...)
	_, err := c.Run(args...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (c *Client) HasStagedChanges() (bool, error) {
	err := c.command("diff", "--cached", "--quiet").Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff failed: %w", err)
}

// Commit records changes to the repository.
func (c *Client) Commit(msg string) error {
	_, err := c.Run("commit", "-q", "-m", msg)
	return err
}

// Status returns the porcelain status of the repo.
func (c *Client) Status() (string, error) {
	return c.Run("status", "--porcelain")
}

// CommitCount returns the number of commits reachable from HEAD, or 0 on an
// empty repository.
func (c *Client) CommitCount() (int, error) {
	out, err := c.Run("rev-list", "--count", "HEAD")
	if err != nil {
		if _, headErr := c.Run("rev-parse", "--verify", "-q", "HEAD"); headErr != nil {
			return 0, nil
		}
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(out, "%d", &n); err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return n, nil
}
