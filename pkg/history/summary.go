package history

import (
	"sort"

	"github.com/hdjv-envi/wastelog/pkg/dedup"
)

// Summary is the aggregate view of a set of records. For hazardous waste
// the measure is the recorded volume; for solid waste each record counts
// as one.
type Summary struct {
	Entries     int
	TotalVolume float64
	TopWaste    string
	AvgPerDay   float64

	ByWaste map[string]int
	ByUser  map[string]int
	Daily   map[string]float64
}

// Summarize computes the aggregate figures for records spanning the given
// number of days.
func Summarize(records []Record, wasteType string, days int) *Summary {
	summary := &Summary{
		Entries: len(records),
		ByWaste: make(map[string]int),
		ByUser:  make(map[string]int),
		Daily:   make(map[string]float64),
	}

	for _, r := range records {
		value := 1.0
		if wasteType == dedup.WasteTypeHazardous {
			value = r.Volume
		}

		summary.TotalVolume += value

		waste := r.Waste
		if waste == "" {
			waste = "Unknown"
		}

		summary.ByWaste[waste]++

		user := r.User
		if user == "" {
			user = "Unknown"
		}

		summary.ByUser[user]++

		if !r.Date.IsZero() {
			summary.Daily[r.Date.Format("Jan 2")] += value
		}
	}

	summary.TopWaste = topKey(summary.ByWaste)

	if days > 0 {
		summary.AvgPerDay = float64(len(records)) / float64(days)
	}

	return summary
}

// TopContributors returns up to n users ordered by entry count.
func (s *Summary) TopContributors(n int) []string {
	users := make([]string, 0, len(s.ByUser))
	for user := range s.ByUser {
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool {
		if s.ByUser[users[i]] != s.ByUser[users[j]] {
			return s.ByUser[users[i]] > s.ByUser[users[j]]
		}

		return users[i] < users[j]
	})

	if len(users) > n {
		users = users[:n]
	}

	return users
}

// topKey returns the key with the highest count, "" for an empty map.
func topKey(counts map[string]int) string {
	var (
		top  string
		best int
	)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}

	// Deterministic tie-breaking.
	sort.Strings(keys)

	for _, k := range keys {
		if counts[k] > best {
			top, best = k, counts[k]
		}
	}

	return top
}
