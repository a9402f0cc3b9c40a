package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cmdbsync/internal/adapter"
	"cmdbsync/internal/catalog"
	"cmdbsync/internal/config"
	"cmdbsync/internal/engine"
	"cmdbsync/internal/handler"
	"cmdbsync/internal/hub"
	"cmdbsync/internal/loader"
	"cmdbsync/internal/logging"
	"cmdbsync/internal/metrics"
	"cmdbsync/internal/repository/sqlite"
	"cmdbsync/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file (default: search "+config.EnvConfigPath+", ./cmdbsync.yaml, user and system dirs)")
	dumpCatalog := flag.Bool("dump-catalog", false, "print the built-in catalog as an overlay file and exit")
	once := flag.Bool("once", false, "run one cycle of every enabled source and exit")
	flag.Parse()

	if *dumpCatalog {
		data, err := loader.ExportYAML(catalog.BuiltinIntegrations())
		if err != nil {
			fmt.Fprintf(os.Stderr, "export catalog: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		return
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if path != "" {
		logger.Info("config loaded", zap.String("path", path))
	} else {
		logger.Info("no config file found, using defaults")
	}
	for _, line := range strings.Split(cfg.Summary(), "\n") {
		logger.Info(line)
	}

	if err := run(cfg, logger, *once); err != nil {
		logger.Fatal("cmdbsync stopped", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func run(cfg *config.Config, logger *zap.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	behavior := cfg.EffectiveBehavior()
	m := metrics.New()
	diag := logging.NewZapDiagnostics(logger.Named("diagnostic"), m.Diagnostic)

	// Catalog: built-in mapping plus the optional overlay
	base := catalog.Builtin()
	active, err := loader.Apply(base, cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	holder := catalog.NewHolder(active)
	logger.Info("catalog ready", zap.Strings("protocols", active.Protocols()))

	if cfg.Catalog.Path != "" && cfg.Catalog.Watch {
		w := watcher.New(cfg.Catalog.Path, func() error {
			if err := loader.Reload(holder, base, cfg.Catalog.Path); err != nil {
				return err
			}
			logger.Info("catalog reloaded", zap.String("path", cfg.Catalog.Path))
			return nil
		}, logger.Named("watcher"))
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("catalog watcher stopped", zap.Error(err))
			}
		}()
	}

	eng := engine.New(holder,
		engine.WithLogger(logger.Named("engine")),
		engine.WithDiagnostics(diag),
		engine.WithMetrics(m))

	sink, err := buildSink(cfg, behavior, logger)
	if err != nil {
		return err
	}

	events := hub.New(logger.Named("events"))
	go events.Run(ctx)

	opts := []adapter.RegistryOption{
		adapter.WithLogger(logger.Named("registry")),
		adapter.WithDiagnostics(diag),
		adapter.WithMetrics(m),
		adapter.WithMaxConcurrent(behavior.MaxConcurrentSources),
	}

	var repo *sqlite.Repository
	if cfg.Database.Path != "" {
		repo, err = sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer repo.Close()
		logger.Info("database opened", zap.String("path", cfg.Database.Path))
		opts = append(opts, adapter.WithStateStore(repo))

		if cfg.Database.JournalRetention != nil {
			go pruneJournal(ctx, repo, cfg.Database.JournalRetention.Duration(), logger)
		}
	}

	if cfg.Probe.Enabled {
		probeOpts := []adapter.NmapOption{
			adapter.WithProbeTimeout(behavior.ProbeTimeout),
			adapter.WithSkipHostDiscovery(cfg.Probe.SkipHostDiscovery),
			adapter.WithProbeLogger(logger.Named("probe")),
		}
		if cfg.Probe.Ports != "" {
			probeOpts = append(probeOpts, adapter.WithProbePorts(cfg.Probe.Ports))
		}
		if cfg.Probe.NmapPath != "" {
			probeOpts = append(probeOpts, adapter.WithBinaryPath(cfg.Probe.NmapPath))
		}
		opts = append(opts, adapter.WithProbe(adapter.NewNmapProbe(probeOpts...)))
	}

	registry := adapter.NewRegistry(eng, adapter.FanoutSink{sink, events}, opts...)
	for _, sc := range cfg.Sources {
		rows, err := buildRowSource(sc, logger)
		if err != nil {
			return fmt.Errorf("source %s: %w", sc.Name, err)
		}
		err = registry.Register(adapter.SourceConfig{
			Name:         sc.Name,
			ElementID:    sc.ElementID,
			Protocol:     sc.Protocol,
			Host:         sc.Host,
			Enabled:      sc.IsEnabled(),
			PollInterval: cfg.SourcePollInterval(sc),
		}, rows)
		if err != nil {
			return err
		}
	}

	if once {
		return registry.TriggerSyncAll(ctx)
	}

	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start registry: %w", err)
	}

	handlerOpts := []handler.Option{
		handler.WithLogger(logger.Named("http")),
		handler.WithMetricsHandler(m.Handler()),
		handler.WithEvents(events),
		handler.WithBackground(ctx),
	}
	if repo != nil {
		handlerOpts = append(handlerOpts, handler.WithJournal(repo))
	}
	mux := http.NewServeMux()
	handler.New(registry, eng, handlerOpts...).Register(mux)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Middleware(logger.Named("http"), mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the event stream is long-lived
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		registry.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	if err := registry.Stop(); err != nil {
		logger.Warn("registry shutdown", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}

func buildSink(cfg *config.Config, behavior config.BehaviorProfile, logger *zap.Logger) (adapter.PushSink, error) {
	switch cfg.Push.Kind {
	case config.PushHTTP:
		token, err := readSecret(cfg.Push.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("push token: %w", err)
		}
		return adapter.NewHTTPSink(adapter.HTTPSinkConfig{
			URL:           cfg.Push.URL,
			Token:         token,
			Timeout:       behavior.PushTimeout,
			RatePerSecond: behavior.PushRatePerSecond,
			MaxRetries:    behavior.PushMaxRetries,
		}, logger.Named("push")), nil
	default:
		return adapter.NewLogSink(logger.Named("push")), nil
	}
}

func buildRowSource(sc config.SourceConfig, logger *zap.Logger) (adapter.RowSource, error) {
	switch sc.Rows.Kind {
	case config.RowsSSH:
		ssh := sc.Rows.SSH
		target := adapter.SSHTarget{
			Host:       sc.Host,
			Port:       ssh.Port,
			User:       ssh.User,
			Passphrase: ssh.Passphrase,
			Command:    ssh.Command,
		}
		if ssh.KeyPath != "" {
			if err := target.LoadPrivateKey(ssh.KeyPath); err != nil {
				return nil, err
			}
		}
		password, err := readSecret(ssh.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("ssh password: %w", err)
		}
		target.Password = password
		return adapter.NewSSHSource(target, logger.Named("ssh")), nil
	default:
		return adapter.NewFileSource(sc.Rows.Dir, logger.Named("rows")), nil
	}
}

// readSecret returns the trimmed content of a secret file. An empty path
// yields an empty secret.
func readSecret(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func pruneJournal(ctx context.Context, repo *sqlite.Repository, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := repo.PruneJournal(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("journal prune failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("journal pruned", zap.Int64("entries", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
