package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Deploy modes supported by the transport layer.
const (
	ModeFTP   = "ftp"
	ModeSFTP  = "sftp"
	ModeLocal = "local"
)

// Config represents the complete moddeployd configuration
type Config struct {
	Profiles      []Profile     `yaml:"profiles"`
	ActiveProfile string        `yaml:"active_profile"`
	Mods          []Mod         `yaml:"mods"`
	App           AppConfig     `yaml:"app"`
	Deploy        DeployConfig  `yaml:"deploy"`
	State         StateConfig   `yaml:"state"`
	Discord       DiscordConfig `yaml:"discord"`
}

// Profile is one remote server destination (FTP or SFTP)
type Profile struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	Root     string `yaml:"root"`
}

// Mod is one watched local mod folder
type Mod struct {
	Name       string `yaml:"name"`
	Enabled    *bool  `yaml:"enabled"`
	LocalPath  string `yaml:"local_path"`
	RemotePath string `yaml:"remote_path"`
}

// IsEnabled reports whether the mod takes part in scanning and deployment.
// An absent enabled flag means enabled.
func (m Mod) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// AppConfig configures the monitor loop
type AppConfig struct {
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`
	TimeoutSeconds      int `yaml:"timeout_seconds"`
}

// ScanInterval returns the time between scan ticks.
func (a AppConfig) ScanInterval() time.Duration {
	return time.Duration(a.ScanIntervalSeconds) * time.Second
}

// Timeout returns the transport I/O timeout.
func (a AppConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DeployConfig configures deployment behavior
type DeployConfig struct {
	Mode                string   `yaml:"mode"`
	RemoteBase          string   `yaml:"remote_base"`
	LocalDir            string   `yaml:"local_dir"`
	DebounceSeconds     *int     `yaml:"debounce_seconds"`
	BundleWindowSeconds *int     `yaml:"bundle_window_seconds"`
	ExcludePatterns     []string `yaml:"exclude_patterns"`
}

// Debounce returns the minimum quiet time a change must survive before it is
// eligible for deployment.
func (d DeployConfig) Debounce() time.Duration {
	if d.DebounceSeconds == nil {
		return 0
	}
	return time.Duration(*d.DebounceSeconds) * time.Second
}

// BundleWindow returns the grace period after the first stable change during
// which further changes join the same batch.
func (d DeployConfig) BundleWindow() time.Duration {
	if d.BundleWindowSeconds == nil {
		return 0
	}
	return time.Duration(*d.BundleWindowSeconds) * time.Second
}

// StateConfig configures durable state storage
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// DiscordConfig configures the outbound webhook notifier
type DiscordConfig struct {
	WebhookURL        string `yaml:"webhook_url"`
	NotifyUpdateFound *bool  `yaml:"notify_update_found"`
	NotifyDeployDone  *bool  `yaml:"notify_deploy_done"`
	NotifyFailure     *bool  `yaml:"notify_failure"`
}

// UpdateFound reports whether detected-change notifications are enabled.
func (d DiscordConfig) UpdateFound() bool { return d.NotifyUpdateFound == nil || *d.NotifyUpdateFound }

// DeployDone reports whether deploy-finished notifications are enabled.
func (d DiscordConfig) DeployDone() bool { return d.NotifyDeployDone == nil || *d.NotifyDeployDone }

// Failure reports whether deploy-failure notifications are enabled.
func (d DiscordConfig) Failure() bool { return d.NotifyFailure == nil || *d.NotifyFailure }

// DefaultExcludePatterns are applied when the config does not list its own.
// They cover the scratch files Steam and editors leave behind mid-write.
var DefaultExcludePatterns = []string{
	"*.log", "*.tmp", "*.cache", "*.bak", "*.old", "*.swp", "*.part", "*.download",
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields, so secrets
// like passwords can be kept out of the config file itself.
func (c *Config) expandEnv() {
	for i := range c.Profiles {
		p := &c.Profiles[i]
		p.Host = os.ExpandEnv(p.Host)
		p.Username = os.ExpandEnv(p.Username)
		p.Password = os.ExpandEnv(p.Password)
		p.Root = os.ExpandEnv(p.Root)
	}
	for i := range c.Mods {
		c.Mods[i].LocalPath = os.ExpandEnv(c.Mods[i].LocalPath)
	}
	c.Deploy.LocalDir = os.ExpandEnv(c.Deploy.LocalDir)
	c.State.Dir = os.ExpandEnv(c.State.Dir)
	c.Discord.WebhookURL = os.ExpandEnv(c.Discord.WebhookURL)
}

func intPtr(v int) *int { return &v }

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.App.ScanIntervalSeconds <= 0 {
		c.App.ScanIntervalSeconds = 60
	} else if c.App.ScanIntervalSeconds < 10 {
		c.App.ScanIntervalSeconds = 10
	}
	if c.App.TimeoutSeconds <= 0 {
		c.App.TimeoutSeconds = 30
	} else if c.App.TimeoutSeconds < 5 {
		c.App.TimeoutSeconds = 5
	}
	if c.Deploy.Mode == "" {
		c.Deploy.Mode = ModeFTP
	}
	if c.Deploy.RemoteBase == "" {
		c.Deploy.RemoteBase = "mods"
	}
	if c.Deploy.DebounceSeconds == nil {
		c.Deploy.DebounceSeconds = intPtr(60)
	}
	if c.Deploy.BundleWindowSeconds == nil {
		c.Deploy.BundleWindowSeconds = intPtr(30)
	}
	if c.Deploy.ExcludePatterns == nil {
		c.Deploy.ExcludePatterns = append([]string(nil), DefaultExcludePatterns...)
	}
	for i := range c.Profiles {
		if c.Profiles[i].Port == 0 {
			if c.Deploy.Mode == ModeSFTP {
				c.Profiles[i].Port = 22
			} else {
				c.Profiles[i].Port = 21
			}
		}
		if c.Profiles[i].Root == "" {
			c.Profiles[i].Root = "/"
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}

	switch c.Deploy.Mode {
	case ModeFTP, ModeSFTP:
		if len(c.Profiles) == 0 {
			return fmt.Errorf("deploy.mode is %q but no profiles are configured", c.Deploy.Mode)
		}
		if _, err := c.Profile(); err != nil {
			return err
		}
	case ModeLocal:
		if c.Deploy.LocalDir == "" {
			return fmt.Errorf("deploy.local_dir is required when deploy.mode is local")
		}
	default:
		return fmt.Errorf("invalid deploy.mode: %s (must be ftp, sftp, or local)", c.Deploy.Mode)
	}

	seenProfiles := make(map[string]bool)
	for _, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profile name is required")
		}
		if seenProfiles[p.Name] {
			return fmt.Errorf("duplicate profile name: %s", p.Name)
		}
		seenProfiles[p.Name] = true
		if p.Host == "" {
			return fmt.Errorf("profile %s: host is required", p.Name)
		}
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("profile %s: invalid port %d", p.Name, p.Port)
		}
	}

	seenMods := make(map[string]bool)
	for _, m := range c.Mods {
		if m.Name == "" {
			return fmt.Errorf("mod name is required")
		}
		if seenMods[m.Name] {
			return fmt.Errorf("duplicate mod name: %s", m.Name)
		}
		seenMods[m.Name] = true
		if m.LocalPath == "" {
			return fmt.Errorf("mod %s: local_path is required", m.Name)
		}
	}

	if *c.Deploy.DebounceSeconds < 0 {
		return fmt.Errorf("deploy.debounce_seconds must not be negative")
	}
	if *c.Deploy.BundleWindowSeconds < 0 {
		return fmt.Errorf("deploy.bundle_window_seconds must not be negative")
	}

	return nil
}

// Profile resolves the active destination profile. When active_profile is not
// set and exactly one profile exists, that one is used.
func (c *Config) Profile() (Profile, error) {
	name := strings.TrimSpace(c.ActiveProfile)
	if name == "" {
		if len(c.Profiles) == 1 {
			return c.Profiles[0], nil
		}
		return Profile{}, fmt.Errorf("active_profile is required when multiple profiles are configured")
	}
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("active_profile %q does not match any configured profile", name)
}

// EnabledMods returns the mods that take part in scanning and deployment.
func (c *Config) EnabledMods() []Mod {
	out := make([]Mod, 0, len(c.Mods))
	for _, m := range c.Mods {
		if m.IsEnabled() {
			out = append(out, m)
		}
	}
	return out
}

// StateFilePath returns the path to the durable watch-state file
func (c *Config) StateFilePath() string {
	return filepath.Join(c.State.Dir, "mod_state.json")
}
