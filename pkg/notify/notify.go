// Package notify polls the backend for users waiting on approval and
// alerts administrators when new ones appear.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/session"
)

// Notifier delivers a pending-approvals alert. total is the number of
// users currently pending, newCount how many appeared since the last
// check.
type Notifier interface {
	PendingApprovals(total, newCount int, emails []string)
}

// logNotifier writes alerts to the log.
type logNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a Notifier that logs alerts.
func NewLogNotifier(log logrus.FieldLogger) Notifier {
	return &logNotifier{log: log.WithField("component", "notify")}
}

// PendingApprovals logs the alert.
func (n *logNotifier) PendingApprovals(total, newCount int, emails []string) {
	n.log.WithFields(logrus.Fields{
		"pending": total,
		"new":     newCount,
		"emails":  emails,
	}).Info("Users waiting for approval")
}

// Poller periodically checks for pending users. It only acts while the
// session carries an admin role.
type Poller struct {
	log      logrus.FieldLogger
	cli      backend.Client
	sessions session.Manager
	notifier Notifier
	clk      clock.Clock
	interval time.Duration

	mu        sync.Mutex
	lastKnown int
}

// NewPoller creates a pending-approval poller.
func NewPoller(
	log logrus.FieldLogger,
	cli backend.Client,
	sessions session.Manager,
	notifier Notifier,
	clk clock.Clock,
	interval time.Duration,
) *Poller {
	return &Poller{
		log:      log.WithField("component", "notify"),
		cli:      cli,
		sessions: sessions,
		notifier: notifier,
		clk:      clk,
		interval: interval,
	}
}

// Run checks immediately and then on every tick until the context ends.
func (p *Poller) Run(ctx context.Context) error {
	p.Check(ctx, false)

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx, false)
		}
	}
}

// Check fetches the user list and alerts when pending users appeared.
// force alerts even without an increase, for explicit "check now"
// requests.
func (p *Poller) Check(ctx context.Context, force bool) {
	if !session.IsAdminRole(p.sessions.Role()) {
		return
	}

	users, err := p.cli.Users(ctx)
	if err != nil {
		p.log.WithError(err).Debug("Pending-approval poll failed")

		return
	}

	var emails []string

	for _, u := range users {
		if u.Status == backend.StatusPending {
			emails = append(emails, u.Email)
		}
	}

	count := len(emails)

	p.mu.Lock()
	diff := count - p.lastKnown
	p.lastKnown = count
	p.mu.Unlock()

	if count > 0 && (force || diff > 0) {
		newCount := diff
		if newCount <= 0 {
			newCount = count
		}

		p.notifier.PendingApprovals(count, newCount, emails)
	}
}

// Pending returns the last observed pending count.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastKnown
}
