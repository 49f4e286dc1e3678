package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/septapod/agentmapper/internal/baselib/actor"
	"github.com/septapod/agentmapper/internal/build"
	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/cloudsync"
	"github.com/septapod/agentmapper/internal/config"
	"github.com/septapod/agentmapper/internal/db"
	"github.com/septapod/agentmapper/internal/inbox"
	"github.com/septapod/agentmapper/internal/insight"
	"github.com/septapod/agentmapper/internal/kvstore"
	"github.com/septapod/agentmapper/internal/netstatus"
	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// daemon holds every long-lived service, wired from one Config.
type daemon struct {
	cfg     *config.Config
	loggers *build.Loggers
	log     *slog.Logger

	base   *db.BaseDB
	system *actor.ActorSystem

	summarizer summary.Summarizer
	insights   *summary.Manager

	store     *workshop.Store
	monitor   netstatus.Monitor
	prober    *netstatus.Prober
	sync      *cloudsync.Coordinator
	inbox     *inbox.Watcher
	cloudHost http.Handler
}

// newDaemon opens storage and builds the services. Nothing runs in the
// background until start.
func newDaemon(ctx context.Context, cfg *config.Config,
	console io.Writer) (*daemon, error) {

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	loggers, err := build.SetupLoggers(build.LogConfig{
		Level:         cfg.Log.Level,
		Dir:           cfg.LogDir(),
		MaxFiles:      cfg.Log.MaxFiles,
		MaxFileSizeMB: cfg.Log.MaxFileSizeMB,
		Console:       console,
	}, map[string]build.SubLoggerFunc{
		actor.Subsystem: actor.UseLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	d := &daemon{
		cfg:     cfg,
		loggers: loggers,
		log:     loggers.Root,
		system:  actor.NewActorSystem(),
	}

	if err := d.build(ctx); err != nil {
		d.close()
		return nil, err
	}

	return d, nil
}

func (d *daemon) build(ctx context.Context) error {
	cfg := d.cfg

	base, err := db.Open(cfg.DBPath(), d.log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	d.base = base

	kv := kvstore.NewSQLStore(base, cfg.KV.QuotaBytes)

	d.summarizer = newSummarizer(cfg, d.log)
	d.insights = summary.NewManager(summary.Config{
		CacheTTL:       cfg.Summary.CacheTTL,
		RequestTimeout: cfg.Summary.Timeout,
	}, summary.NewCache(kv, d.log), d.summarizer, d.log)

	backend, err := d.cloudBackend()
	if err != nil {
		return err
	}

	d.store = workshop.NewStore(ctx, workshop.Config{
		KV:      kv,
		Backend: backend,
		Log:     d.log,
	})

	d.monitor = netstatus.Static{}
	if cfg.Cloud.URL != "" {
		addr, err := netstatus.ProbeAddr(cfg.Cloud.URL)
		if err != nil {
			return fmt.Errorf("cloud.url: %w", err)
		}
		d.prober = netstatus.NewProber(netstatus.ProberConfig{
			Addr:     addr,
			Interval: cfg.NetStatus.ProbeInterval,
			Timeout:  cfg.NetStatus.ProbeTimeout,
		}, nil, d.log)
		d.monitor = d.prober
	}

	d.sync = cloudsync.New(cloudsync.Config{
		Store:    d.store,
		Monitor:  d.monitor,
		Debounce: cfg.Sync.Debounce,
		System:   d.system,
		Log:      d.log,
	})

	if cfg.Inbox.Dir != "" {
		w, err := inbox.New(cfg.Inbox.Dir, d.store, d.log)
		if err != nil {
			return err
		}
		d.inbox = w
	}

	return nil
}

// newSummarizer picks the summary backend: a remote daemon's endpoint, the
// model in-process, or nothing at all.
func newSummarizer(cfg *config.Config, log *slog.Logger) summary.Summarizer {
	if cfg.Summary.Endpoint != "" {
		return summary.NewHTTPClient(cfg.Summary.Endpoint, &http.Client{
			Timeout: cfg.Summary.Timeout,
		})
	}

	var model insight.Model
	if cfg.Summary.APIKey != "" {
		model = insight.NewAnthropicModel(
			cfg.Summary.APIKey, cfg.Summary.Model,
		)
	}

	return insight.NewService(insight.Config{
		MaxConcurrent: cfg.Summary.MaxConcurrent,
		MaxTokens:     insight.DefaultMaxTokens,
		Timeout:       cfg.Summary.Timeout,
	}, model, log)
}

// cloudBackend returns the backend the store syncs to, or nil when cloud
// sync is not configured. Hosting the cloud copy also mounts its API.
func (d *daemon) cloudBackend() (cloud.Backend, error) {
	cfg := d.cfg

	var hosted *cloud.SQLBackend
	if cfg.Cloud.Serve {
		hosted = cloud.NewSQLBackend(d.base, d.log)
		d.cloudHost = cloud.NewHandler(hosted, cfg.Cloud.ServeToken, d.log)
	}

	switch {
	case cfg.Cloud.URL != "":
		return cloud.NewClient(cfg.Cloud.URL, cfg.Cloud.Token, nil), nil

	case hosted != nil:
		return hosted, nil
	}

	return nil, nil
}

// start launches the background services.
func (d *daemon) start(ctx context.Context) error {
	if d.prober != nil {
		d.prober.Start(ctx)
	}

	d.sync.Start(ctx)

	if d.inbox != nil {
		if err := d.inbox.Start(ctx); err != nil {
			return fmt.Errorf("start inbox: %w", err)
		}
	}

	d.log.InfoContext(ctx, "Daemon started",
		"version", build.Version(),
		"summaries", d.cfg.IsRemoteSummaryConfigured(),
		"cloud_sync", d.cfg.IsRemoteSyncConfigured(),
		"cloud_host", d.cloudHost != nil)

	return nil
}

// close stops everything in reverse start order. It is safe on a
// partially built daemon.
func (d *daemon) close() {
	var errs []error

	if d.inbox != nil {
		errs = append(errs, d.inbox.Stop())
	}
	if d.sync != nil {
		d.sync.Stop()
	}
	if d.prober != nil {
		d.prober.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs = append(errs, d.system.Shutdown(ctx))

	if d.base != nil {
		errs = append(errs, d.base.Close())
	}

	if err := errors.Join(errs...); err != nil {
		d.log.Warn("Unclean shutdown", "error", err)
	}

	_ = d.loggers.Close()
}
