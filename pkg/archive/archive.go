package archive

import "context"

// Submission is an accepted record to archive: the stamped photo plus a
// JSON sidecar describing it.
type Submission struct {
	RequestID string `json:"requestId"`
	Site      string `json:"package"`
	WasteType string `json:"wasteType"`
	Date      string `json:"date"`
	Volume    string `json:"volume,omitempty"`
	Location  string `json:"location,omitempty"`
	Waste     string `json:"waste"`
	User      string `json:"user"`
	ImageName string `json:"imageName"`

	// Image is the stamped photo bytes. Not serialised into the sidecar.
	Image []byte `json:"-"`
}

// Archiver stores accepted submissions in remote storage. Archiving is
// best effort and never affects deduplication state.
type Archiver interface {
	// Preflight verifies that the remote storage is reachable and
	// writable. Writes a small test object to fail fast on
	// misconfiguration.
	Preflight(ctx context.Context) error

	// Store archives one accepted submission: the photo under
	// <prefix>/<site>/<wasteType>/<imageName> and a JSON sidecar next
	// to it.
	Store(ctx context.Context, sub *Submission) error
}
