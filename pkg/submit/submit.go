// Package submit runs the per-entry submission pipeline: local
// validation, fingerprint derivation, completed-history and in-flight
// checks, photo stamping, and a single authenticated upload carrying a
// deterministic request identifier.
package submit

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/archive"
	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/dedup"
	"github.com/hdjv-envi/wastelog/pkg/session"
	"github.com/hdjv-envi/wastelog/pkg/watermark"
)

// Result describes an accepted submission.
type Result struct {
	Fingerprint dedup.Fingerprint
	RequestID   string

	// Duplicate is true when the backend recognised the request ID from
	// an earlier attempt: the record was already durably saved, which is
	// success, not failure.
	Duplicate bool
}

// Submitter runs the submission pipeline.
type Submitter struct {
	log      logrus.FieldLogger
	sessions session.Manager
	dedup    dedup.Deduplicator
	backend  backend.Client
	stamper  watermark.Stamper
	archiver archive.Archiver
	unit     string
}

// New creates a Submitter. archiver may be nil when no archive is
// configured.
func New(
	log logrus.FieldLogger,
	sessions session.Manager,
	deduper dedup.Deduplicator,
	cli backend.Client,
	stamper watermark.Stamper,
	archiver archive.Archiver,
	unit string,
) *Submitter {
	return &Submitter{
		log:      log.WithField("component", "submit"),
		sessions: sessions,
		dedup:    deduper,
		backend:  cli,
		stamper:  stamper,
		archiver: archiver,
		unit:     unit,
	}
}

// Submit runs one entry through the pipeline. The in-flight lock is
// acquired before any slow work (stamping, upload) begins, so a second
// attempt for the same record is rejected no matter how quickly it
// follows the first.
func (s *Submitter) Submit(ctx context.Context, entry Entry) (*Result, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	fp := entry.Fingerprint()

	if c := s.dedup.IsCompleted(fp); c.Completed {
		return nil, &AlreadySubmittedError{HoursSince: c.HoursSince}
	}

	if !s.dedup.TryAcquire(fp) {
		return nil, ErrInProgress
	}

	requestID := s.dedup.RequestID(fp)

	log := s.log.WithField("fingerprint", string(fp)).
		WithField("request_id", requestID)

	stamped, err := s.stamper.Stamp(ctx, entry.PhotoPath, watermark.Info{
		Unit:      s.unit,
		User:      s.sessions.Email(),
		Site:      entry.Site,
		WasteType: entry.WasteType,
	})
	if err != nil {
		// The upload never started, but the lock still cools down so a
		// hasty retry cannot double-fire once the underlying problem
		// (e.g. missing position) is fixed mid-flight.
		s.dedup.Release(fp, dedup.NetworkCooldown)

		return nil, err
	}

	result, err := s.backend.Upload(ctx, &backend.UploadRequest{
		RequestID: requestID,
		Package:   entry.Site,
		WasteType: entry.WasteType,
		Date:      entry.Date,
		Volume:    entry.Volume,
		Location:  entry.Location,
		Waste:     entry.Waste,
		ImageByte: base64.StdEncoding.EncodeToString(stamped.Data),
		ImageName: stamped.Name,
	})
	if err != nil {
		s.dedup.Release(fp, dedup.NetworkCooldown)

		if backend.IsTransient(err) {
			log.WithError(err).Warn("Upload outcome ambiguous")

			return nil, &AmbiguousOutcomeError{Cause: err}
		}

		// Authoritative rejections: 401 has already forced logout
		// through the token source, 403 is surfaced as-is.
		return nil, err
	}

	if !result.Accepted() {
		s.dedup.Release(fp, dedup.FailureCooldown)

		return nil, &RejectedError{Reason: result.Error}
	}

	if err := s.dedup.Complete(ctx, fp); err != nil {
		log.WithError(err).Warn("Failed to persist completed submission")
	}

	if result.Duplicate() {
		log.Info("Backend recognised earlier attempt")
	} else {
		log.Info("Entry submitted")
	}

	s.archiveAccepted(ctx, &entry, requestID, stamped)

	return &Result{
		Fingerprint: fp,
		RequestID:   requestID,
		Duplicate:   result.Duplicate(),
	}, nil
}

// SubmitBatch submits entries sequentially, collecting per-entry errors
// instead of stopping at the first failure.
func (s *Submitter) SubmitBatch(ctx context.Context, entries []Entry) ([]*Result, []error) {
	results := make([]*Result, 0, len(entries))

	var errs []error

	for i := range entries {
		result, err := s.Submit(ctx, entries[i])
		if err != nil {
			errs = append(errs, err)

			// A forced logout makes every remaining entry fail the
			// same way; stop early.
			if errors.Is(err, backend.ErrUnauthorized) ||
				errors.Is(err, backend.ErrNoToken) {
				break
			}

			continue
		}

		results = append(results, result)
	}

	return results, errs
}

// archiveAccepted stores the accepted submission in the archive, best
// effort.
func (s *Submitter) archiveAccepted(
	ctx context.Context, entry *Entry, requestID string, stamped *watermark.Stamped,
) {
	if s.archiver == nil {
		return
	}

	err := s.archiver.Store(ctx, &archive.Submission{
		RequestID: requestID,
		Site:      entry.Site,
		WasteType: entry.WasteType,
		Date:      entry.Date,
		Volume:    entry.Volume,
		Location:  entry.Location,
		Waste:     entry.Waste,
		User:      s.sessions.Email(),
		ImageName: stamped.Name,
		Image:     stamped.Data,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to archive submission")
	}
}
