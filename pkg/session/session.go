// Package session owns the authenticated session: the bearer token, its
// expiry, the user's role, and the periodic validation and refresh sweeps
// that keep the token fresh without user action.
//
// All "session is no longer good" paths (local expiry, backend-reported
// invalidity, a 401 on any authenticated call, explicit logout) flow
// through ForceLogout, which clears memory state and durable state
// together and notifies observers exactly once per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/statestore"
)

const (
	// ValidateInterval is the period of the coarse validation sweep.
	ValidateInterval = 5 * time.Minute

	// RefreshInterval is the period of the refresh-check sweep.
	RefreshInterval = 30 * time.Minute

	// RefreshThreshold is the remaining lifetime below which the sweep
	// proactively refreshes the token.
	RefreshThreshold = 24 * time.Hour

	// ExpiryWarnThreshold is the remaining lifetime below which a failed
	// refresh is escalated to a warning.
	ExpiryWarnThreshold = time.Hour
)

// Roles as reported by the backend.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// IsAdminRole reports whether the role grants access to privileged views.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// Manager maintains the authoritative belief about whether the user is
// authenticated, with what role, and until when. It implements
// backend.TokenSource so a 401 anywhere routes through ForceLogout.
type Manager interface {
	backend.TokenSource

	// Start loads any persisted session into memory.
	Start(ctx context.Context) error

	// SetBackend wires the backend client used for validation and
	// refresh. Must be called before Validate, Refresh, or
	// StartMonitoring.
	SetBackend(c backend.Client)

	// Establish installs a new session after a successful login.
	Establish(ctx context.Context, token string, expiry time.Time, role, email string) error

	// Accessors. Token is inherited from backend.TokenSource.
	Role() string
	Email() string
	Authenticated() bool
	IsExpired() bool
	MinutesRemaining() int

	// Validate checks the session against the backend. It reports false
	// on local expiry and backend rejection (both force logout) and on
	// network failure (which does not: offline is not "invalid").
	Validate(ctx context.Context) bool

	// Refresh asks the backend to extend the token. Best effort.
	Refresh(ctx context.Context) bool

	// CheckAndRefresh refreshes when remaining lifetime is below
	// RefreshThreshold.
	CheckAndRefresh(ctx context.Context)

	// StartMonitoring starts the validation and refresh sweeps. Calling
	// it again replaces the running sweeps, never stacks them. Wake
	// triggers an immediate out-of-band validation (the CLI analog of
	// the browser regaining visibility).
	StartMonitoring(ctx context.Context)
	StopMonitoring()
	Wake(ctx context.Context)

	// ForceLogout clears all session state, stops the sweeps, and
	// notifies observers. Idempotent once logged out.
	ForceLogout(ctx context.Context)

	// OnLogout registers an observer invoked after a forced logout.
	OnLogout(fn func())
}

// Compile-time interface check.
var _ Manager = (*manager)(nil)

type manager struct {
	log   logrus.FieldLogger
	store statestore.Store
	clk   clock.Clock
	cli   backend.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	role   string
	email  string

	// gen invalidates sweep goroutines from superseded StartMonitoring
	// calls: a loop whose generation is stale does nothing and exits.
	gen       atomic.Int64
	monMu     sync.Mutex
	monCancel context.CancelFunc

	sf singleflight.Group

	obsMu    sync.Mutex
	onLogout []func()
}

// NewManager creates a new session manager.
func NewManager(
	log logrus.FieldLogger,
	store statestore.Store,
	clk clock.Clock,
) Manager {
	return &manager{
		log:   log.WithField("component", "session"),
		store: store,
		clk:   clk,
	}
}

// SetBackend wires the backend client.
func (m *manager) SetBackend(c backend.Client) {
	m.cli = c
}

// Start loads any persisted session into memory.
func (m *manager) Start(ctx context.Context) error {
	state, err := m.store.LoadSession(ctx)
	if err != nil {
		return err
	}

	if state == nil {
		return nil
	}

	m.mu.Lock()
	m.token = state.Token
	m.expiry = state.ExpiresAt
	m.role = state.Role
	m.email = state.Email
	m.mu.Unlock()

	m.log.WithField("email", state.Email).
		WithField("role", state.Role).
		Debug("Restored persisted session")

	return nil
}

// Establish installs a new session after a successful login.
func (m *manager) Establish(
	ctx context.Context, token string, expiry time.Time, role, email string,
) error {
	if token == "" {
		return fmt.Errorf("establishing session: empty token")
	}

	if !expiry.After(m.clk.Now()) {
		return fmt.Errorf("establishing session: expiry %s is not in the future", expiry.Format(time.RFC3339))
	}

	m.mu.Lock()
	m.token = token
	m.expiry = expiry
	m.role = role
	m.email = email
	m.mu.Unlock()

	return m.store.SaveSession(ctx, &statestore.SessionState{
		Token:     token,
		ExpiresAt: expiry,
		Role:      role,
		Email:     email,
	})
}

// Token returns the current bearer token, or "" when logged out.
func (m *manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token
}

// Role returns the current role, or "" when logged out.
func (m *manager) Role() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.role
}

// Email returns the current identity, or "" when logged out.
func (m *manager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.email
}

// Authenticated reports whether a token is present.
func (m *manager) Authenticated() bool {
	return m.Token() != ""
}

// IsExpired reports whether no expiry is recorded or it has passed.
func (m *manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.expiry.IsZero() || !m.clk.Now().Before(m.expiry)
}

// MinutesRemaining returns whole minutes until expiry, 0 when expired or
// absent.
func (m *manager) MinutesRemaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expiry.IsZero() {
		return 0
	}

	remaining := m.expiry.Sub(m.clk.Now())
	if remaining <= 0 {
		return 0
	}

	return int(remaining / time.Minute)
}

// Validate checks the session against the backend. Concurrent calls
// (sweep racing a wake) are collapsed into one backend request.
func (m *manager) Validate(ctx context.Context) bool {
	if !m.Authenticated() {
		return false
	}

	if m.IsExpired() {
		m.log.Info("Token expired locally")
		m.ForceLogout(ctx)

		return false
	}

	// Collapsed callers share the first caller's ctx: a wake folded
	// into a sweep whose ctx is cancelled mid-flight reports false.
	// That path never logs out, and the next sweep revalidates.
	ok, _, _ := m.sf.Do("validate", func() (any, error) {
		return m.validateOnce(ctx), nil
	})

	valid, _ := ok.(bool)

	return valid
}

func (m *manager) validateOnce(ctx context.Context) bool {
	result, err := m.cli.ValidateToken(ctx)
	if err != nil {
		// A 401 has already forced logout through the token source.
		// Anything else is transient: the session survives and the
		// next sweep retries.
		if !errors.Is(err, backend.ErrUnauthorized) {
			m.log.WithError(err).Debug("Token validation unavailable")
		}

		return false
	}

	if !result.Valid {
		m.log.Info("Backend reported token invalid")
		m.ForceLogout(ctx)

		return false
	}

	if result.TokenExpiry > 0 {
		m.updateExpiry(ctx, time.UnixMilli(result.TokenExpiry))
	}

	return true
}

// Refresh asks the backend to extend the token.
func (m *manager) Refresh(ctx context.Context) bool {
	if !m.Authenticated() {
		return false
	}

	result, err := m.cli.RefreshToken(ctx)
	if err != nil {
		if !errors.Is(err, backend.ErrUnauthorized) {
			m.log.WithError(err).Debug("Token refresh unavailable")
		}

		return false
	}

	if !result.Success || result.TokenExpiry == 0 {
		return false
	}

	m.updateExpiry(ctx, time.UnixMilli(result.TokenExpiry))

	return true
}

// CheckAndRefresh refreshes proactively when the token is close to
// expiring.
func (m *manager) CheckAndRefresh(ctx context.Context) {
	remaining := m.MinutesRemaining()
	if remaining <= 0 {
		return
	}

	if time.Duration(remaining)*time.Minute >= RefreshThreshold {
		return
	}

	if m.Refresh(ctx) {
		m.log.WithField("minutes_remaining", m.MinutesRemaining()).
			Info("Session extended")

		return
	}

	if time.Duration(remaining)*time.Minute < ExpiryWarnThreshold {
		m.log.WithField("minutes_remaining", remaining).
			Warn("Session expiring soon and refresh failed")
	}
}

// updateExpiry records a new expiry and persists the session.
func (m *manager) updateExpiry(ctx context.Context, expiry time.Time) {
	m.mu.Lock()
	m.expiry = expiry
	state := &statestore.SessionState{
		Token:     m.token,
		ExpiresAt: m.expiry,
		Role:      m.role,
		Email:     m.email,
	}
	m.mu.Unlock()

	if err := m.store.SaveSession(ctx, state); err != nil {
		m.log.WithError(err).Warn("Failed to persist session expiry")
	}
}

// StartMonitoring starts the validation and refresh sweeps, replacing any
// sweeps from a previous call.
func (m *manager) StartMonitoring(ctx context.Context) {
	m.monMu.Lock()
	defer m.monMu.Unlock()

	if m.monCancel != nil {
		m.monCancel()
		m.monCancel = nil
	}

	gen := m.gen.Add(1)

	monCtx, cancel := context.WithCancel(ctx)
	m.monCancel = cancel

	go m.validateLoop(monCtx, gen)
	go m.refreshLoop(monCtx, gen)
}

// StopMonitoring cancels the running sweeps.
func (m *manager) StopMonitoring() {
	m.monMu.Lock()
	defer m.monMu.Unlock()

	if m.monCancel != nil {
		m.monCancel()
		m.monCancel = nil
	}

	m.gen.Add(1)
}

// Wake triggers an immediate validation, e.g. when the host wakes from
// suspend or the agent receives SIGUSR1.
func (m *manager) Wake(ctx context.Context) {
	m.Validate(ctx)
}

func (m *manager) validateLoop(ctx context.Context, gen int64) {
	ticker := m.clk.Ticker(ValidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.gen.Load() != gen {
				return
			}

			m.Validate(ctx)
		}
	}
}

func (m *manager) refreshLoop(ctx context.Context, gen int64) {
	// The refresh sweep checks once at start so a client that was off
	// for days extends its token immediately.
	m.CheckAndRefresh(ctx)

	ticker := m.clk.Ticker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.gen.Load() != gen {
				return
			}

			m.CheckAndRefresh(ctx)
		}
	}
}

// Invalidate implements backend.TokenSource: an authoritative rejection
// from any authenticated call lands here.
func (m *manager) Invalidate(ctx context.Context) {
	m.ForceLogout(ctx)
}

// ForceLogout clears all session state atomically, stops the sweeps, and
// notifies observers. Safe to call from any goroutine, including the
// sweeps themselves.
func (m *manager) ForceLogout(ctx context.Context) {
	m.mu.Lock()
	if m.token == "" {
		m.mu.Unlock()

		return
	}

	m.token = ""
	m.expiry = time.Time{}
	m.role = ""
	m.email = ""
	m.mu.Unlock()

	m.StopMonitoring()

	if err := m.store.ClearSession(ctx); err != nil {
		m.log.WithError(err).Warn("Failed to clear persisted session")
	}

	m.log.Info("Session ended")

	m.obsMu.Lock()
	observers := make([]func(), len(m.onLogout))
	copy(observers, m.onLogout)
	m.obsMu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// OnLogout registers an observer invoked after a forced logout.
func (m *manager) OnLogout(fn func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	m.onLogout = append(m.onLogout, fn)
}
