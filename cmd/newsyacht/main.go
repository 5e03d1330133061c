package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/ntBre/newsyacht/pkg/config"
	"github.com/ntBre/newsyacht/pkg/feed"
	"github.com/ntBre/newsyacht/pkg/repository"
	"github.com/ntBre/newsyacht/pkg/updater"
	"github.com/ntBre/newsyacht/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"NEWSYACHT_CONFIG" default:"newsyacht.yml" description:"configuration file"`

	UpdateCmd struct{} `command:"update" description:"fetch all feeds and store new articles"`

	ListCmd struct {
		Feed  int64 `long:"feed" description:"only show articles from this feed id"`
		Limit int   `long:"limit" default:"50" description:"maximum articles to show"`
	} `command:"list" description:"list stored articles"`

	ServerCmd struct {
		Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address (overrides config)"`
	} `command:"server" description:"serve the read-only web interface"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	setupLog(opts.Debug)
	if opts.NoColor {
		color.NoColor = true
	}

	cfg := loadConfig(opts.Config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	var err error
	switch parser.Active.Name {
	case "update":
		err = runUpdate(ctx, cfg)
	case "list":
		err = runList(ctx, cfg, opts.ListCmd.Feed, opts.ListCmd.Limit)
	case "server":
		listen := cfg.Server.Listen
		if opts.ServerCmd.Listen != "" {
			listen = opts.ServerCmd.Listen
		}
		err = runServer(ctx, cfg, listen, opts.Debug)
	}

	if err != nil {
		var feedsErr *feedsFailedError
		if errors.As(err, &feedsErr) {
			log.Printf("[WARN] %v", err)
			os.Exit(1)
		}
		log.Printf("[ERROR] %v", err)
		os.Exit(2)
	}
}

// loadConfig reads the config file, falling back to defaults when it doesn't
// exist so the tool works out of the box
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[DEBUG] no config file at %s, using defaults", path)
			return config.Default()
		}
		log.Printf("[ERROR] can't load config %s: %v", path, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[ERROR] invalid config %s: %v", path, err)
		os.Exit(2)
	}
	return cfg
}

// feedsFailedError reports a completed update run with per-feed failures
type feedsFailedError struct {
	result *updater.Result
}

func (e *feedsFailedError) Error() string {
	return fmt.Sprintf("%d of %d feeds failed", e.result.Failed, e.result.Processed)
}

func runUpdate(ctx context.Context, cfg *config.Config) error {
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close() //nolint:errcheck

	upd := updater.New(updater.Params{
		SourcesPath: cfg.Sources,
		Concurrency: cfg.Update.Concurrency,
		FeedStore:   repos.Feed,
		Articles:    repos.Article,
		Fetcher: feed.NewFetcher(feed.FetcherConfig{
			Timeout:      cfg.Update.Timeout,
			UserAgent:    cfg.Update.UserAgent,
			MaxBodySize:  cfg.Update.MaxBodySize,
			MaxRedirects: cfg.Update.MaxRedirects,
		}),
		Parser:   feed.NewParser(),
		Enricher: feed.NewEnricher(),
	})

	result, err := upd.Run(ctx)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	fmt.Printf("processed %d feeds: %d updated, %d unchanged, %d failed, %d new articles\n",
		result.Processed, result.Done, result.Unchanged, result.Failed, result.Added)
	for _, f := range result.Failures {
		fmt.Printf("  failed %s: %v\n", f.URL, f.Err)
	}

	if result.Failed > 0 {
		return &feedsFailedError{result: result}
	}
	return nil
}

func runList(ctx context.Context, cfg *config.Config, feedID int64, limit int) error {
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close() //nolint:errcheck

	feeds, err := repos.Feed.GetFeeds(ctx)
	if err != nil {
		return fmt.Errorf("get feeds: %w", err)
	}

	articles, err := repos.Article.GetArticles(ctx, repository.ArticlesRequest{FeedID: feedID, Limit: limit})
	if err != nil {
		return fmt.Errorf("get articles: %w", err)
	}

	printArticles(os.Stdout, feeds, articles)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, listen string, debug bool) error {
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close() //nolint:errcheck

	srv := server.New(repos.Article, repos.Feed, server.Config{
		Listen:  listen,
		Timeout: cfg.Server.Timeout,
		Version: revision,
		Debug:   debug,
	})

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Print("[INFO] shutdown complete")
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repository.Repositories, error) {
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repos.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return repos, nil
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
