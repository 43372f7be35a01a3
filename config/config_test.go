package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func writeConfigFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.ProjectPath = "/srv/projects/demo"
	cfg.DiscordWebhookURL = "https://discord.com/api/webhooks/1/abc"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, expected %d", cfg.Version, CurrentVersion)
	}
	if cfg.ProjectName != "UE4 Project" {
		t.Errorf("ProjectName = %q, expected %q", cfg.ProjectName, "UE4 Project")
	}
	if cfg.WebhookTimeoutSeconds != 10 {
		t.Errorf("WebhookTimeoutSeconds = %d, expected 10", cfg.WebhookTimeoutSeconds)
	}
	if cfg.CheckIntervalMinutes != 30 {
		t.Errorf("CheckIntervalMinutes = %d, expected 30", cfg.CheckIntervalMinutes)
	}
	if cfg.MaxCommitsToShow != 5 {
		t.Errorf("MaxCommitsToShow = %d, expected 5", cfg.MaxCommitsToShow)
	}
	if cfg.MessageFormat != "embed" {
		t.Errorf("MessageFormat = %q, expected %q", cfg.MessageFormat, "embed")
	}
	if !cfg.IncludeUncommitted {
		t.Error("IncludeUncommitted = false, expected true")
	}
	if cfg.FetchRemote {
		t.Error("FetchRemote = true, expected false")
	}
	if cfg.GitBackend != "gogit" {
		t.Errorf("GitBackend = %q, expected %q", cfg.GitBackend, "gogit")
	}
	if len(cfg.IgnoredFiles) != 3 {
		t.Errorf("IgnoredFiles length = %d, expected 3", len(cfg.IgnoredFiles))
	}
	if len(cfg.BugfixPatterns) != 3 {
		t.Errorf("BugfixPatterns length = %d, expected 3", len(cfg.BugfixPatterns))
	}
	if len(cfg.Categories) != 4 {
		t.Errorf("Categories length = %d, expected 4", len(cfg.Categories))
	}
	if cfg.StatePath != "git-reporter.state.json" {
		t.Errorf("StatePath = %q, expected %q", cfg.StatePath, "git-reporter.state.json")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, expected %q", cfg.LogLevel, "info")
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.Interval().Minutes(); got != 30 {
		t.Errorf("Interval() = %v minutes, expected 30", got)
	}
	if got := cfg.WebhookTimeout().Seconds(); got != 10 {
		t.Errorf("WebhookTimeout() = %v seconds, expected 10", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	path := tempConfigPath(t)

	cfg, source, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != SourceDefaults {
		t.Errorf("source = %q, expected %q", source, SourceDefaults)
	}
	if cfg.CheckIntervalMinutes != 30 {
		t.Errorf("CheckIntervalMinutes = %d, expected default 30", cfg.CheckIntervalMinutes)
	}
}

func TestLoad_MergesWithDefaults(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{
		"project_name": "Demo",
		"check_interval_minutes": 5,
		"ignored_files": ["*.log"],
		"categories": {"Docs": [".md"]}
	}`)

	cfg, source, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != SourceFile {
		t.Errorf("source = %q, expected %q", source, SourceFile)
	}
	if cfg.ProjectName != "Demo" {
		t.Errorf("ProjectName = %q, expected %q", cfg.ProjectName, "Demo")
	}
	if cfg.CheckIntervalMinutes != 5 {
		t.Errorf("CheckIntervalMinutes = %d, expected 5", cfg.CheckIntervalMinutes)
	}
	if len(cfg.IgnoredFiles) != 1 || cfg.IgnoredFiles[0] != "*.log" {
		t.Errorf("IgnoredFiles = %v, expected [*.log]", cfg.IgnoredFiles)
	}
	// Absent keys keep their defaults.
	if cfg.MaxCommitsToShow != 5 {
		t.Errorf("MaxCommitsToShow = %d, expected default 5", cfg.MaxCommitsToShow)
	}
	if len(cfg.BugfixPatterns) != 3 {
		t.Errorf("BugfixPatterns length = %d, expected default 3", len(cfg.BugfixPatterns))
	}
	// A categories key in the file replaces the defaults wholesale.
	if len(cfg.Categories) != 1 {
		t.Fatalf("Categories length = %d, expected 1", len(cfg.Categories))
	}
	if _, ok := cfg.Categories["Docs"]; !ok {
		t.Error("Categories missing key Docs")
	}
}

func TestLoad_EmptyCategoriesRespected(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{"categories": {}}`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Categories) != 0 {
		t.Errorf("Categories length = %d, expected 0", len(cfg.Categories))
	}
}

func TestLoad_CorruptedFallsBackToBackup(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{"project_name": "Trunc`)
	writeConfigFile(t, path+".bak", `{"project_name": "FromBackup"}`)

	cfg, source, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != SourceBackup {
		t.Errorf("source = %q, expected %q", source, SourceBackup)
	}
	if cfg.ProjectName != "FromBackup" {
		t.Errorf("ProjectName = %q, expected %q", cfg.ProjectName, "FromBackup")
	}
}

func TestLoad_BothCorruptedFallsBackToDefaults(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `not json`)
	writeConfigFile(t, path+".bak", `also not json`)

	cfg, source, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != SourceDefaults {
		t.Errorf("source = %q, expected %q", source, SourceDefaults)
	}
	if cfg.ProjectName != "UE4 Project" {
		t.Errorf("ProjectName = %q, expected default %q", cfg.ProjectName, "UE4 Project")
	}
}

func TestLoad_MigratesLegacyWebhookKey(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{"webhook_url": "https://example.com/hook"}`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DiscordWebhookURL != "https://example.com/hook" {
		t.Errorf("DiscordWebhookURL = %q, expected legacy value", cfg.DiscordWebhookURL)
	}
	if cfg.LegacyWebhookURL != "" {
		t.Errorf("LegacyWebhookURL = %q, expected cleared", cfg.LegacyWebhookURL)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, expected %d", cfg.Version, CurrentVersion)
	}
}

func TestLoad_NewKeyWinsOverLegacy(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{
		"discord_webhook_url": "https://example.com/new",
		"webhook_url": "https://example.com/old"
	}`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DiscordWebhookURL != "https://example.com/new" {
		t.Errorf("DiscordWebhookURL = %q, expected new key to win", cfg.DiscordWebhookURL)
	}
}

func TestLoad_VersionTooNew(t *testing.T) {
	path := tempConfigPath(t)
	writeConfigFile(t, path, `{"version": 99}`)
	// A valid backup must not mask the version error.
	writeConfigFile(t, path+".bak", `{"project_name": "Stale"}`)

	_, _, err := Load(path)
	if !errors.Is(err, ErrVersionTooNew) {
		t.Fatalf("Load() error = %v, expected ErrVersionTooNew", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := tempConfigPath(t)
	cfg := validConfig()
	cfg.ProjectName = "Round Trip"
	cfg.Categories = map[string][]string{"Audio": {".wav", ".ogg"}}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, source, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if source != SourceFile {
		t.Errorf("source = %q, expected %q", source, SourceFile)
	}
	if loaded.ProjectName != "Round Trip" {
		t.Errorf("ProjectName = %q, expected %q", loaded.ProjectName, "Round Trip")
	}
	if loaded.DiscordWebhookURL != cfg.DiscordWebhookURL {
		t.Errorf("DiscordWebhookURL = %q, expected %q", loaded.DiscordWebhookURL, cfg.DiscordWebhookURL)
	}
	if len(loaded.Categories) != 1 || len(loaded.Categories["Audio"]) != 2 {
		t.Errorf("Categories = %v, expected single Audio entry", loaded.Categories)
	}
}

func TestSave_WritesBackupOfPreviousFile(t *testing.T) {
	path := tempConfigPath(t)

	first := validConfig()
	first.ProjectName = "First"
	if err := Save(first, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Errorf("backup exists after first save, expected none")
	}

	second := validConfig()
	second.ProjectName = "Second"
	if err := Save(second, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	var backed Config
	if err := json.Unmarshal(data, &backed); err != nil {
		t.Fatalf("parse backup: %v", err)
	}
	if backed.ProjectName != "First" {
		t.Errorf("backup ProjectName = %q, expected %q", backed.ProjectName, "First")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(c *Config) {}, wantErr: ""},
		{name: "Blank format and backend accepted", mutate: func(c *Config) {
			c.MessageFormat = ""
			c.GitBackend = ""
		}, wantErr: ""},
		{name: "Missing project path", mutate: func(c *Config) {
			c.ProjectPath = ""
		}, wantErr: "project_path is required"},
		{name: "Missing webhook URL", mutate: func(c *Config) {
			c.DiscordWebhookURL = ""
		}, wantErr: "discord_webhook_url is required"},
		{name: "Non-HTTP webhook URL", mutate: func(c *Config) {
			c.DiscordWebhookURL = "ftp://example.com/hook"
		}, wantErr: "is not an http(s) URL"},
		{name: "Zero timeout", mutate: func(c *Config) {
			c.WebhookTimeoutSeconds = 0
		}, wantErr: "webhook_timeout_seconds must be positive"},
		{name: "Negative interval", mutate: func(c *Config) {
			c.CheckIntervalMinutes = -1
		}, wantErr: "check_interval_minutes must be positive"},
		{name: "Zero max commits", mutate: func(c *Config) {
			c.MaxCommitsToShow = 0
		}, wantErr: "max_commits_to_show must be positive"},
		{name: "Missing state path", mutate: func(c *Config) {
			c.StatePath = ""
		}, wantErr: "state_path is required"},
		{name: "Unknown message format", mutate: func(c *Config) {
			c.MessageFormat = "xml"
		}, wantErr: "message_format"},
		{name: "Unknown git backend", mutate: func(c *Config) {
			c.GitBackend = "svn"
		}, wantErr: "unknown git backend"},
		{name: "Unknown log level", mutate: func(c *Config) {
			c.LogLevel = "noisy"
		}, wantErr: "log_level"},
		{name: "Invalid ignore pattern", mutate: func(c *Config) {
			c.IgnoredFiles = []string{"["}
		}, wantErr: "invalid ignore pattern"},
		{name: "Invalid bugfix pattern", mutate: func(c *Config) {
			c.BugfixPatterns = []string{"[unclosed"}
		}, wantErr: "bugfix_patterns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, expected nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, expected to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_AggregatesErrors(t *testing.T) {
	err := (&Config{}).Validate()
	if err == nil {
		t.Fatal("Validate() = nil, expected errors for empty config")
	}
	for _, want := range []string{
		"project_path is required",
		"discord_webhook_url is required",
		"webhook_timeout_seconds must be positive",
		"check_interval_minutes must be positive",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() missing %q in %v", want, err)
		}
	}
}
