package statestore

import "time"

// SessionState is the single persisted session. There is at most one row;
// login replaces it and forced logout deletes it together with the
// completed-submission log.
type SessionState struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Role      string    `gorm:"not null"`
	Email     string    `gorm:"not null"`
	UpdatedAt time.Time
}

// CompletedSubmission records that the backend durably accepted the
// logical record identified by Fingerprint at CompletedAt. Entries older
// than the retention window are pruned and treated as absent either way.
type CompletedSubmission struct {
	Fingerprint string    `gorm:"primaryKey"`
	CompletedAt time.Time `gorm:"not null;index"`
}

// Preference is a persisted user preference, keyed by name.
type Preference struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

// Preference keys.
const (
	PrefDefaultSite = "default_site"
)
