package statestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

// Store provides durable local state for the client: the session, the
// completed-submission log, and preferences.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Session state. LoadSession returns (nil, nil) when no session is
	// persisted.
	SaveSession(ctx context.Context, s *SessionState) error
	LoadSession(ctx context.Context) (*SessionState, error)

	// ClearSession removes the session row and the completed-submission
	// log in one transaction, so no partial state survives a forced
	// logout.
	ClearSession(ctx context.Context) error

	// Completed-submission log.
	UpsertCompleted(ctx context.Context, c *CompletedSubmission) error
	ListCompleted(ctx context.Context) ([]CompletedSubmission, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) error

	// Preferences.
	SetPreference(ctx context.Context, key, value string) error
	GetPreference(ctx context.Context, key string) (string, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.StateConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.StateConfig,
) Store {
	return &store{
		log: log.WithField("component", "statestore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(s.cfg.SQLite.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("creating state directory: %w", err)
			}
		}

		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported state driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&SessionState{},
		&CompletedSubmission{},
		&Preference{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.db = db

	s.log.WithField("driver", s.cfg.Driver).Debug("State database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Session state ---

func (s *store) SaveSession(ctx context.Context, state *SessionState) error {
	state.ID = 1

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(state).Error; err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	return nil
}

func (s *store) LoadSession(ctx context.Context) (*SessionState, error) {
	var state SessionState
	if err := s.db.WithContext(ctx).First(&state, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("loading session: %w", err)
	}

	return &state, nil
}

func (s *store) ClearSession(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SessionState{}).Error; err != nil {
			return err
		}

		return tx.Where("1 = 1").Delete(&CompletedSubmission{}).Error
	})
	if err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}

	return nil
}

// --- Completed-submission log ---

func (s *store) UpsertCompleted(ctx context.Context, c *CompletedSubmission) error {
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(c).Error; err != nil {
		return fmt.Errorf("recording completed submission: %w", err)
	}

	return nil
}

func (s *store) ListCompleted(ctx context.Context) ([]CompletedSubmission, error) {
	var completed []CompletedSubmission
	if err := s.db.WithContext(ctx).
		Order("completed_at ASC").
		Find(&completed).Error; err != nil {
		return nil, fmt.Errorf("listing completed submissions: %w", err)
	}

	return completed, nil
}

func (s *store) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) error {
	if err := s.db.WithContext(ctx).
		Where("completed_at < ?", cutoff).
		Delete(&CompletedSubmission{}).Error; err != nil {
		return fmt.Errorf("pruning completed submissions: %w", err)
	}

	return nil
}

// --- Preferences ---

func (s *store) SetPreference(ctx context.Context, key, value string) error {
	pref := Preference{Key: key, Value: value}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&pref).Error; err != nil {
		return fmt.Errorf("saving preference: %w", err)
	}

	return nil
}

func (s *store) GetPreference(ctx context.Context, key string) (string, error) {
	var pref Preference
	if err := s.db.WithContext(ctx).First(&pref, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("loading preference: %w", err)
	}

	return pref.Value, nil
}
