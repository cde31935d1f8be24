package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hdjv-envi/wastelog/pkg/notify"
	"github.com/hdjv-envi/wastelog/pkg/session"
	"github.com/hdjv-envi/wastelog/pkg/statusapi"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the long-lived session agent",
	Long: `Run as a long-lived agent that keeps the session validated and
refreshed, polls for pending user approvals when logged in as an
admin, and optionally serves a local status API.

SIGUSR1 triggers an immediate session validation, the service analog
of a workstation waking from sleep.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setupApp(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.requireAuth(); err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	// A forced logout ends the agent: without a session there is nothing
	// left to keep alive.
	a.sessions.OnLogout(func() {
		log.Warn("Session ended, shutting down")
		cancel()
	})

	if a.archiver != nil {
		if err := a.archiver.Preflight(ctx); err != nil {
			return fmt.Errorf("archive preflight failed: %w", err)
		}

		log.Info("Archive preflight check passed")
	}

	a.sessions.StartMonitoring(ctx)
	defer a.sessions.StopMonitoring()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wakeCh := make(chan os.Signal, 1)
		signal.Notify(wakeCh, syscall.SIGUSR1)
		defer signal.Stop(wakeCh)

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-wakeCh:
				log.Info("Wake signal received, validating session")
				a.sessions.Wake(gctx)
			}
		}
	})

	if session.IsAdminRole(a.sessions.Role()) {
		poller := notify.NewPoller(
			log, a.backend, a.sessions, notify.NewLogNotifier(log),
			clock.New(), a.cfg.Agent.PendingPollInterval,
		)

		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	if a.cfg.Agent.StatusAPI.Enabled {
		srv := statusapi.NewServer(log, &a.cfg.Agent.StatusAPI, a.sessions, a.dedup)

		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting status API: %w", err)
		}

		defer func() {
			if err := srv.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop status API")
			}
		}()
	}

	log.WithField("email", a.sessions.Email()).Info("Agent running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Agent stopped")

	return nil
}
