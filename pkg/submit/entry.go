package submit

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hdjv-envi/wastelog/pkg/dedup"
)

// Solid waste location bounds. Locations are chainage posts rendered as
// "P-<n>".
const (
	MinSolidLocation = 462
	MaxSolidLocation = 1260
)

// dateLayout is the calendar date format used throughout the record
// contract.
const dateLayout = "2006-01-02"

// Entry is one waste record ready for submission. Volume and Date are
// kept as the user-entered strings: they participate in the fingerprint,
// so their formatting must be stable across attempts.
type Entry struct {
	Site      string
	WasteType string
	Date      string
	Volume    string
	Location  string
	Waste     string
	PhotoPath string
}

// NewHazardousEntry builds a hazardous waste entry.
func NewHazardousEntry(site, date, volume, waste, photoPath string) Entry {
	return Entry{
		Site:      site,
		WasteType: dedup.WasteTypeHazardous,
		Date:      date,
		Volume:    volume,
		Waste:     waste,
		PhotoPath: photoPath,
	}
}

// NewSolidEntry builds a solid waste entry for the given location number.
func NewSolidEntry(site, date string, location int, waste, photoPath string) Entry {
	return Entry{
		Site:      site,
		WasteType: dedup.WasteTypeSolid,
		Date:      date,
		Location:  fmt.Sprintf("P-%d", location),
		Waste:     waste,
		PhotoPath: photoPath,
	}
}

// Validate rejects an entry before any network call. Validation failures
// cause no state mutation.
func (e *Entry) Validate() error {
	if e.Site == "" {
		return fmt.Errorf("site is required")
	}

	if e.Date == "" {
		return fmt.Errorf("date is required")
	}

	if _, err := time.Parse(dateLayout, e.Date); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", e.Date)
	}

	if e.Waste == "" {
		return fmt.Errorf("waste type is required")
	}

	if e.PhotoPath == "" {
		return fmt.Errorf("photo is required")
	}

	switch e.WasteType {
	case dedup.WasteTypeHazardous:
		if e.Volume == "" {
			return fmt.Errorf("volume is required")
		}

		volume, err := strconv.ParseFloat(e.Volume, 64)
		if err != nil || volume <= 0 {
			return fmt.Errorf("invalid volume %q: expected a positive number", e.Volume)
		}
	case dedup.WasteTypeSolid:
		var location int
		if _, err := fmt.Sscanf(e.Location, "P-%d", &location); err != nil {
			return fmt.Errorf("invalid location %q: expected P-<number>", e.Location)
		}

		if location < MinSolidLocation || location > MaxSolidLocation {
			return fmt.Errorf("location %d out of range %d-%d",
				location, MinSolidLocation, MaxSolidLocation)
		}
	default:
		return fmt.Errorf("unknown waste type %q", e.WasteType)
	}

	return nil
}

// Fingerprint returns the deterministic identity of this entry.
func (e *Entry) Fingerprint() dedup.Fingerprint {
	if e.WasteType == dedup.WasteTypeHazardous {
		return dedup.HazardousFingerprint(e.Site, e.Date, e.Volume, e.Waste)
	}

	return dedup.SolidFingerprint(e.Site, e.Date, e.Location, e.Waste)
}

// batchFile is the on-disk format for batch submissions.
type batchFile struct {
	Site    string       `yaml:"site"`
	Entries []batchEntry `yaml:"entries"`
}

type batchEntry struct {
	WasteType string `yaml:"waste_type"`
	Date      string `yaml:"date"`
	Volume    string `yaml:"volume,omitempty"`
	Location  int    `yaml:"location,omitempty"`
	Waste     string `yaml:"waste"`
	Photo     string `yaml:"photo"`
}

// LoadBatch reads a YAML batch file and returns its entries. Per-entry
// validation happens at submission time so one bad entry does not block
// the rest.
func LoadBatch(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var batch batchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	if batch.Site == "" {
		return nil, fmt.Errorf("batch file: site is required")
	}

	entries := make([]Entry, 0, len(batch.Entries))

	for _, be := range batch.Entries {
		switch be.WasteType {
		case dedup.WasteTypeHazardous:
			entries = append(entries, NewHazardousEntry(
				batch.Site, be.Date, be.Volume, be.Waste, be.Photo,
			))
		case dedup.WasteTypeSolid:
			entries = append(entries, NewSolidEntry(
				batch.Site, be.Date, be.Location, be.Waste, be.Photo,
			))
		default:
			return nil, fmt.Errorf("batch file: unknown waste type %q", be.WasteType)
		}
	}

	return entries, nil
}
