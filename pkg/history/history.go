// Package history fetches submitted records from the backend and derives
// the aggregate figures shown to administrators. Rendering is left to the
// caller.
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/dedup"
)

// MaxRangeDays is the largest date range a single query may span.
const MaxRangeDays = 31

const dateLayout = "2006-01-02"

// Record is one submitted waste record.
type Record struct {
	Date     time.Time
	Volume   float64
	Location string
	Waste    string
	Site     string
	User     string
	PhotoURL string
}

// Service fetches and summarises records.
type Service struct {
	log logrus.FieldLogger
	cli backend.Client
}

// NewService creates a history service.
func NewService(log logrus.FieldLogger, cli backend.Client) *Service {
	return &Service{
		log: log.WithField("component", "history"),
		cli: cli,
	}
}

// Fetch returns records for a site and waste type within the date range.
// The range is inclusive and capped at MaxRangeDays.
func (s *Service) Fetch(ctx context.Context, site, wasteType, from, to string) ([]Record, error) {
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}

	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}

	if toDate.Before(fromDate) {
		return nil, fmt.Errorf("from date must not be after to date")
	}

	if toDate.Sub(fromDate) > MaxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("date range exceeds %d days", MaxRangeDays)
	}

	rows, err := s.cli.Records(ctx, site, wasteType, from, to)
	if err != nil {
		return nil, err
	}

	// The first row is the header.
	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]Record, 0, len(rows)-1)

	for _, row := range rows[1:] {
		records = append(records, parseRow(row, wasteType))
	}

	return records, nil
}

// parseRow converts one raw backend row. Row layout: date, volume or
// location, waste, package, user, photo URL.
func parseRow(row []any, wasteType string) Record {
	record := Record{
		Date:     parseDate(cell(row, 0)),
		Waste:    cell(row, 2),
		Site:     cell(row, 3),
		User:     cell(row, 4),
		PhotoURL: cell(row, 5),
	}

	if wasteType == dedup.WasteTypeHazardous {
		record.Volume, _ = strconv.ParseFloat(cell(row, 1), 64)
	} else {
		record.Location = cell(row, 1)
	}

	return record
}

// cell returns row[i] rendered as a string, "" when absent.
func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}

	switch v := row[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseDate accepts the backend's date renderings.
func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// FilterWaste returns records whose waste description contains the
// filter, case-insensitively. An empty filter returns the input.
func FilterWaste(records []Record, filter string) []Record {
	if filter == "" {
		return records
	}

	needle := strings.ToLower(filter)

	filtered := make([]Record, 0, len(records))

	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Waste), needle) {
			filtered = append(filtered, r)
		}
	}

	return filtered
}
