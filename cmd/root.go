package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/gitreporter/git-reporter/config"
	"github.com/gitreporter/git-reporter/internal/bugfix"
	"github.com/gitreporter/git-reporter/internal/git"
	"github.com/gitreporter/git-reporter/internal/ignore"
	"github.com/gitreporter/git-reporter/internal/notify"
	"github.com/gitreporter/git-reporter/internal/notify/console"
	"github.com/gitreporter/git-reporter/internal/notify/discord"
	"github.com/gitreporter/git-reporter/internal/report"
	"github.com/gitreporter/git-reporter/internal/state"
	"github.com/gitreporter/git-reporter/internal/watch"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "git-reporter",
		Usage:   "Watches a Git repository and posts new commits to a Discord webhook",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Path to the Git repository to watch",
				EnvVars: []string{"REPO_PATH"},
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Usage:   "Discord webhook URL",
				EnvVars: []string{"DISCORD_WEBHOOK_URL"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Poll interval, e.g. 90s or 15m",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single poll cycle and exit",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print reports to stdout instead of posting them",
			},
			&cli.BoolFlag{
				Name:  "init",
				Usage: "Write a default configuration file and exit",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	path := c.String("config")
	if c.Bool("init") {
		if err := config.Save(config.DefaultConfig(), path); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "wrote default configuration to %s\n", path)
		return nil
	}

	cfg, source, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	applyOverrides(cfg, c)

	if err := setupLogging(cfg); err != nil {
		return err
	}
	log.WithFields(log.Fields{"path": path, "source": source}).Info("configuration loaded")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	watcher, err := buildWatcher(cfg, c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Bool("once") {
		return watcher.RunOnce(ctx)
	}
	return watcher.Run(ctx)
}

// applyOverrides folds flag values into the loaded configuration. Flags
// win over the file; urfave sources them from the environment where
// EnvVars is set, so REPO_PATH and DISCORD_WEBHOOK_URL arrive here too.
func applyOverrides(cfg *config.Config, c *cli.Context) {
	if repo := c.String("repo"); repo != "" {
		cfg.ProjectPath = repo
	}
	if url := c.String("webhook-url"); url != "" {
		cfg.DiscordWebhookURL = url
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
}

// setupLogging configures logrus: text format with full timestamps, to
// stderr and, when log_path is set, an append-only log file as well.
func setupLogging(cfg *config.Config) error {
	level := log.InfoLevel
	if cfg.LogLevel != "" {
		parsed, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.LogPath == "" {
		return nil
	}
	if dir := filepath.Dir(cfg.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", cfg.LogPath, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// buildWatcher wires the repository reader, report builder, notifier,
// and state store described by cfg into a watcher.
func buildWatcher(cfg *config.Config, c *cli.Context) (*watch.Watcher, error) {
	backend, err := git.ParseBackend(cfg.GitBackend)
	if err != nil {
		return nil, err
	}
	source, err := git.NewHistoryReader(git.ReadOptions{
		RepoPath:   cfg.ProjectPath,
		Branch:     cfg.Branch,
		MaxCommits: cfg.MaxCommitsToShow,
		Backend:    backend,
	})
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.ProjectPath, err)
	}

	rules, err := ignore.Compile(cfg.IgnoredFiles)
	if err != nil {
		return nil, err
	}
	detector, err := bugfix.NewDetector(cfg.BugfixPatterns)
	if err != nil {
		return nil, fmt.Errorf("bugfix_patterns: %w", err)
	}
	builder := report.NewBuilder(report.Options{
		Rules:      rules,
		Categories: categoryList(cfg.Categories),
		Bugfix:     detector,
	})

	notifier, err := buildNotifier(cfg, c.Bool("dry-run"))
	if err != nil {
		return nil, err
	}

	store := state.NewStore(cfg.StatePath)
	if _, err := store.Load(); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	mode, err := watch.ParseMode(cfg.MessageFormat)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval()
	if d := c.Duration("interval"); d > 0 {
		interval = d
	}

	return watch.NewWatcher(watch.Options{
		Source:   source,
		Builder:  builder,
		Notifier: notifier,
		Store:    store,
		Interval: interval,
		Mode:     mode,
		Fetch:    cfg.FetchRemote,
		Project:  cfg.ProjectName,
		Status:   cfg.IncludeUncommitted,
	})
}

func buildNotifier(cfg *config.Config, dryRun bool) (notify.Notifier, error) {
	if dryRun {
		return console.NewWriter(os.Stdout), nil
	}
	return discord.NewWebhook(discord.Options{
		URL:      cfg.DiscordWebhookURL,
		Username: cfg.WebhookUsername,
		Timeout:  cfg.WebhookTimeout(),
	})
}

// categoryList converts the config categories map into an ordered list.
// Keys are sorted so extension precedence is stable across runs.
func categoryList(m map[string][]string) []report.Category {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	cats := make([]report.Category, 0, len(names))
	for _, name := range names {
		cats = append(cats, report.Category{Name: name, Extensions: m[name]})
	}
	return cats
}

// Run executes the CLI application.
func Run() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
