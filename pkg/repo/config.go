package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings: committer identity and
// named remotes.
type Config struct {
	User    UserConfig              `toml:"user,omitempty"`
	Remotes map[string]RemoteConfig `toml:"remote,omitempty"`
}

// UserConfig is the [user] table of config.toml.
type UserConfig struct {
	Name       string `toml:"name,omitempty"`
	Email      string `toml:"email,omitempty"`
	SigningKey string `toml:"signingkey,omitempty"`
}

// RemoteConfig is one [remote.<name>] table.
type RemoteConfig struct {
	URL string `toml:"url"`
}

// Author formats the configured identity as "Name <email>". Empty if
// no name is set.
func (c *Config) Author() string {
	name := strings.TrimSpace(c.User.Name)
	if name == "" {
		return ""
	}
	email := strings.TrimSpace(c.User.Email)
	if email == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func (r *Repo) configPath() string {
	return filepath.Join(r.HistDir, "config.toml")
}

// ReadConfig reads .hist/config.toml. Missing config returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(r.configPath(), &cfg); err != nil {
		if os.IsNotExist(err) {
			return &Config{Remotes: make(map[string]RemoteConfig)}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	return &cfg, nil
}

// WriteConfig atomically rewrites .hist/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(r.HistDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetUser stores the committer identity in repository config. Empty
// fields keep their current values.
func (r *Repo) SetUser(name, email, signingKey string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(name); v != "" {
		cfg.User.Name = v
	}
	if v := strings.TrimSpace(email); v != "" {
		cfg.User.Email = v
	}
	if v := strings.TrimSpace(signingKey); v != "" {
		cfg.User.SigningKey = v
	}
	return r.WriteConfig(cfg)
}

// SetRemote stores/updates a named remote URL in repository config.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = RemoteConfig{URL: remoteURL}
	return r.WriteConfig(cfg)
}

// RemoveRemote deletes a named remote from repository config.
func (r *Repo) RemoveRemote(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("remove remote: remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Remotes[name]; !ok {
		return fmt.Errorf("remove remote: remote %q is not configured", name)
	}
	delete(cfg.Remotes, name)
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(rc.URL) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.URL, nil
}
