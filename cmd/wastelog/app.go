package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/archive"
	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/config"
	"github.com/hdjv-envi/wastelog/pkg/dedup"
	"github.com/hdjv-envi/wastelog/pkg/session"
	"github.com/hdjv-envi/wastelog/pkg/statestore"
	"github.com/hdjv-envi/wastelog/pkg/submit"
	"github.com/hdjv-envi/wastelog/pkg/watermark"
)

// app holds the wired components shared by the commands. Every command
// goes through setupApp so the session, deduplicator, and backend client
// are always assembled the same way.
type app struct {
	cfg      *config.Config
	store    statestore.Store
	sessions session.Manager
	dedup    dedup.Deduplicator
	backend  backend.Client
	archiver archive.Archiver
}

// setupApp loads configuration and starts the local state store, session
// manager, and deduplicator. The caller must call close when done.
func setupApp(ctx context.Context) (*app, func(), error) {
	if cfgFile == "" {
		return nil, nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.Global.LogLevel != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		if err := setLogLevel(cfg.Global.LogLevel); err != nil {
			return nil, nil, err
		}
	}

	store := statestore.NewStore(log, &cfg.State)
	if err := store.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting state store: %w", err)
	}

	clk := clock.New()

	sessions := session.NewManager(log, store, clk)
	if err := sessions.Start(ctx); err != nil {
		stopStore(store)

		return nil, nil, fmt.Errorf("starting session manager: %w", err)
	}

	cli := backend.NewClient(log, &cfg.Backend, sessions)
	sessions.SetBackend(cli)

	deduper := dedup.New(log, store, clk)
	if err := deduper.Start(ctx); err != nil {
		stopStore(store)

		return nil, nil, fmt.Errorf("starting deduplicator: %w", err)
	}

	// A forced logout clears the durable completed log, so the live
	// tables must go with it.
	sessions.OnLogout(deduper.Reset)

	a := &app{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		dedup:    deduper,
		backend:  cli,
	}

	if cfg.Archive != nil && cfg.Archive.Enabled {
		archiver, err := archive.NewS3Archiver(log, &cfg.Archive.S3)
		if err != nil {
			deduper.Close()
			stopStore(store)

			return nil, nil, fmt.Errorf("creating S3 archiver: %w", err)
		}

		a.archiver = archiver
	}

	cleanup := func() {
		deduper.Close()
		stopStore(store)
	}

	return a, cleanup, nil
}

// submitter assembles the submission pipeline on top of the app's
// components.
func (a *app) submitter() *submit.Submitter {
	stamper := watermark.NewStamper(log, watermark.NewSiteLocator(a.cfg.Sites), clock.New())

	return submit.New(
		log, a.sessions, a.dedup, a.backend, stamper, a.archiver, a.cfg.Global.Unit,
	)
}

// requireAuth fails early when no session is present, before a command
// burns a backend call just to learn it is logged out.
func (a *app) requireAuth() error {
	if !a.sessions.Authenticated() {
		return fmt.Errorf("not logged in (run \"wastelog login\" first)")
	}

	return nil
}

func stopStore(store statestore.Store) {
	if err := store.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop state store")
	}
}

func setLogLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q in config: %w", level, err)
	}

	log.SetLevel(parsed)

	return nil
}
