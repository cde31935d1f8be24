package dedup

import (
	"fmt"
	"strings"
	"time"
)

// Waste type discriminators used in fingerprints and upload payloads.
const (
	WasteTypeHazardous = "hazardous"
	WasteTypeSolid     = "solid"
)

// Fingerprint is the deterministic identity of a logical waste record,
// derived from its defining fields only. Photo content and submission
// time never participate, so the same real-world event submitted twice
// always collides.
type Fingerprint string

// HazardousFingerprint builds the fingerprint for a hazardous record.
// Volume is the user-entered string so that formatting is stable.
func HazardousFingerprint(site, date, volume, waste string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s-%s-%s-%s-%s",
		site, WasteTypeHazardous, date, volume, waste))
}

// SolidFingerprint builds the fingerprint for a solid record. Location is
// the rendered "P-<n>" form.
func SolidFingerprint(site, date, location, waste string) Fingerprint {
	return Fingerprint(fmt.Sprintf("%s-%s-%s-%s-%s",
		site, WasteTypeSolid, date, location, waste))
}

// requestID derives the idempotency key sent to the backend: fingerprint
// plus the calendar date of the attempt, sanitised to [A-Za-z0-9-_].
//
// The date is the attempt's date, not the record's date field, so retries
// of the same record across a midnight boundary produce different keys.
// That quirk is kept intentionally: the backend's duplicate window is
// scoped to a calendar day and the client-side completed log covers the
// 24h case regardless.
func requestID(fp Fingerprint, now time.Time) string {
	raw := string(fp) + "-" + now.UTC().Format("2006-01-02")

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-':
			return r
		default:
			return '_'
		}
	}, raw)
}
