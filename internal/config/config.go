// Package config manages tfsgit configuration stored in the git control
// directory. It handles loading, saving, and initializing the configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/tfsgit/internal/identity"
	"github.com/kilupskalvis/tfsgit/internal/remote"
	"github.com/kilupskalvis/tfsgit/internal/store"
	"github.com/pelletier/go-toml/v2"
)

const (
	GitDir       = ".git"
	ConfigFile   = "tfsgit.toml"
	WorkspaceDir = "tfsgit_workspace"

	DefaultRemoteID = "default"
)

// Config represents the tfsgit configuration
type Config struct {
	URL            string   `toml:"url"`
	RepositoryPath string   `toml:"repository_path"`
	SubtreePaths   []string `toml:"subtree_paths,omitempty"`
	Prefix         string   `toml:"prefix,omitempty"`
	RemoteID       string   `toml:"remote_id"`

	CutPath      string `toml:"cut_path,omitempty"`
	CutPathForce bool   `toml:"cut_path_force"`
	IgnoreRegex  string `toml:"ignore_regex,omitempty"`
	ExceptRegex  string `toml:"except_regex,omitempty"`

	// forwarded to the server client
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`

	BranchParentsFile string `toml:"branch_parents_file,omitempty"`
	AuthorsFile       string `toml:"authors_file,omitempty"`
	Workspace         string `toml:"workspace_dir,omitempty"`

	LDAP identity.LDAPConfig `toml:"ldap"`

	path string // path to the git control directory
}

// FindGitDir finds the .git directory by walking up from dir
func FindGitDir(dir string) (string, error) {
	for {
		gitPath := filepath.Join(dir, GitDir)
		if info, err := os.Stat(gitPath); err == nil && info.IsDir() {
			return gitPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a git repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration of the repository containing the current directory
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	gitPath, err := FindGitDir(cwd)
	if err != nil {
		return nil, err
	}
	return LoadFrom(gitPath)
}

// LoadFrom loads the configuration stored in gitPath
func LoadFrom(gitPath string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(gitPath, ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("tfsgit is not initialized in %s, run 'tfsgit init'", filepath.Dir(gitPath))
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RemoteID == "" {
		cfg.RemoteID = DefaultRemoteID
	}

	cfg.path = gitPath
	return &cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0600)
}

// GitPath returns the path to the git control directory
func (c *Config) GitPath() string {
	return c.path
}

// DatabasePath returns the path to the projection log
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, store.FileName)
}

// WorkspacePath returns where source content is downloaded to
func (c *Config) WorkspacePath() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	return filepath.Join(c.path, WorkspaceDir, c.RemoteID)
}

// RemoteOptions returns the remote settings consumed by the projection
func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		ID:             c.RemoteID,
		URL:            c.URL,
		RepositoryPath: c.RepositoryPath,
		SubtreePaths:   c.SubtreePaths,
		Prefix:         c.Prefix,
		IgnoreRegex:    c.IgnoreRegex,
		ExceptRegex:    c.ExceptRegex,
	}
}

// Initialize writes a new configuration into the .git directory of dir
func Initialize(dir, url, repositoryPath string) (*Config, error) {
	gitPath := filepath.Join(dir, GitDir)
	if info, err := os.Stat(gitPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is not a git repository", dir)
	}

	// Check if already initialized
	if _, err := os.Stat(filepath.Join(gitPath, ConfigFile)); err == nil {
		return nil, fmt.Errorf("tfsgit is already initialized in %s", dir)
	}

	cfg := &Config{
		URL:            url,
		RepositoryPath: repositoryPath,
		RemoteID:       DefaultRemoteID,
		path:           gitPath,
	}
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
