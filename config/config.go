// Package config loads, validates, and persists the reporter's JSON
// configuration. Loading recovers from a corrupted file by falling back
// to the .bak copy written on every save, and finally to defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/gitreporter/git-reporter/internal/atomicfile"
	"github.com/gitreporter/git-reporter/internal/bugfix"
	"github.com/gitreporter/git-reporter/internal/git"
	"github.com/gitreporter/git-reporter/internal/ignore"
)

// CurrentVersion is the configuration schema version this build writes.
const CurrentVersion = 1

// DefaultPath is where the reporter looks for its configuration when no
// path is given.
const DefaultPath = "config.json"

// ErrVersionTooNew reports a configuration file written by a newer
// build. Load surfaces it instead of recovering to backup or defaults.
var ErrVersionTooNew = errors.New("config version is newer than this build supports")

// Source identifies where a loaded configuration came from.
type Source string

// Configuration sources, in recovery order.
const (
	SourceFile     Source = "file"
	SourceBackup   Source = "backup"
	SourceDefaults Source = "defaults"
)

// Config is the root configuration structure.
type Config struct {
	Version               int                 `json:"version"`
	ProjectName           string              `json:"project_name"`
	ProjectPath           string              `json:"project_path"`
	Branch                string              `json:"branch"` // Empty means current HEAD
	DiscordWebhookURL     string              `json:"discord_webhook_url"`
	WebhookUsername       string              `json:"webhook_username"`
	WebhookTimeoutSeconds int                 `json:"webhook_timeout_seconds"`
	CheckIntervalMinutes  int                 `json:"check_interval_minutes"`
	MaxCommitsToShow      int                 `json:"max_commits_to_show"`
	MessageFormat         string              `json:"message_format"` // "embed" or "digest"
	IncludeUncommitted    bool                `json:"include_uncommitted"`
	FetchRemote           bool                `json:"fetch_remote"`
	GitBackend            string              `json:"git_backend"`
	IgnoredFiles          []string            `json:"ignored_files"`
	BugfixPatterns        []string            `json:"bugfix_patterns"`
	Categories            map[string][]string `json:"categories"`
	StatePath             string              `json:"state_path"`
	LogPath               string              `json:"log_path"` // Empty logs to stderr only
	LogLevel              string              `json:"log_level"`

	// LegacyWebhookURL carries the pre-v1 "webhook_url" key. Migration
	// folds it into DiscordWebhookURL and clears it, so the old key is
	// never written back.
	LegacyWebhookURL string `json:"webhook_url,omitempty"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Version:               CurrentVersion,
		ProjectName:           "UE4 Project",
		WebhookTimeoutSeconds: 10,
		CheckIntervalMinutes:  30,
		MaxCommitsToShow:      5,
		MessageFormat:         "embed",
		IncludeUncommitted:    true,
		FetchRemote:           false,
		GitBackend:            string(git.BackendGoGit),
		IgnoredFiles: []string{
			"*.uasset",
			"Saved/*",
			"Intermediate/*",
		},
		BugfixPatterns: []string{
			`\bfix(ed|es)?\b`,
			`\bbug\b`,
			`\bhotfix\b`,
		},
		Categories: map[string][]string{
			"Blueprints": {".uasset"},
			"C++":        {".cpp", ".h"},
			"Content":    {".umap", ".uproject"},
			"Config":     {".ini", ".config"},
		},
		StatePath: "git-reporter.state.json",
		LogPath:   "logs/reporter.log",
		LogLevel:  "info",
	}
}

// Interval returns the poll interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// WebhookTimeout returns the webhook HTTP timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

// Load reads the configuration at path, merging with defaults. A file
// that cannot be read or parsed is recovered from its .bak copy, and
// failing that, replaced by defaults. The returned Source records which
// of the three was used. Only ErrVersionTooNew aborts recovery.
func Load(path string) (*Config, Source, error) {
	cfg, err := loadFile(path)
	if err == nil {
		return cfg, SourceFile, nil
	}
	if errors.Is(err, ErrVersionTooNew) {
		return nil, SourceFile, err
	}
	if !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Warn("config unreadable, trying backup")
	}

	bak := atomicfile.BackupPath(path)
	cfg, bakErr := loadFile(bak)
	if bakErr == nil {
		log.WithField("path", bak).Warn("configuration restored from backup")
		return cfg, SourceBackup, nil
	}
	if errors.Is(bakErr, ErrVersionTooNew) {
		return nil, SourceBackup, bakErr
	}
	if !os.IsNotExist(bakErr) {
		log.WithError(bakErr).WithField("path", bak).Warn("backup config unreadable")
	}

	return DefaultConfig(), SourceDefaults, nil
}

// Save backs up the existing file and atomically writes cfg to path.
func Save(cfg *Config, path string) error {
	cfg.Version = CurrentVersion
	if err := atomicfile.Backup(path); err != nil {
		return fmt.Errorf("back up config: %w", err)
	}
	return atomicfile.WriteJSON(path, cfg)
}

// loadFile reads one configuration file, merging with defaults and
// migrating legacy fields.
func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	// Unmarshal merges keys into a live map, which would mix the default
	// categories into user-defined ones. Nil it out so a categories key
	// in the file replaces the defaults wholesale.
	cfg.Categories = nil

	if err := atomicfile.ReadJSON(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Categories == nil {
		cfg.Categories = DefaultConfig().Categories
	}
	if err := cfg.migrate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// migrate upgrades a loaded configuration to the current schema
// version. Version 0 files predate the version field and may still use
// the old webhook_url key.
func (c *Config) migrate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d: %w", c.Version, ErrVersionTooNew)
	}
	if c.DiscordWebhookURL == "" && c.LegacyWebhookURL != "" {
		c.DiscordWebhookURL = c.LegacyWebhookURL
	}
	c.LegacyWebhookURL = ""
	c.Version = CurrentVersion
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.ProjectPath == "" {
		errs = multierror.Append(errs, errors.New("project_path is required"))
	}
	if c.DiscordWebhookURL == "" {
		errs = multierror.Append(errs, errors.New("discord_webhook_url is required"))
	} else if u, err := url.Parse(c.DiscordWebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = multierror.Append(errs, fmt.Errorf("discord_webhook_url %q is not an http(s) URL", c.DiscordWebhookURL))
	}
	if c.WebhookTimeoutSeconds <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("webhook_timeout_seconds must be positive, got %d", c.WebhookTimeoutSeconds))
	}
	if c.CheckIntervalMinutes <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("check_interval_minutes must be positive, got %d", c.CheckIntervalMinutes))
	}
	if c.MaxCommitsToShow <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("max_commits_to_show must be positive, got %d", c.MaxCommitsToShow))
	}
	if c.StatePath == "" {
		errs = multierror.Append(errs, errors.New("state_path is required"))
	}

	switch strings.ToLower(strings.TrimSpace(c.MessageFormat)) {
	case "", "embed", "digest":
	default:
		errs = multierror.Append(errs, fmt.Errorf("message_format %q is not one of embed, digest", c.MessageFormat))
	}
	if _, err := git.ParseBackend(c.GitBackend); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("log_level: %w", err))
		}
	}

	// Pattern fields are checked by the same compilers that consume them.
	if _, err := ignore.Compile(c.IgnoredFiles); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, err := bugfix.NewDetector(c.BugfixPatterns); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("bugfix_patterns: %w", err))
	}

	return errs.ErrorOrNil()
}
