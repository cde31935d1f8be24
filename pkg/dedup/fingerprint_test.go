package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := HazardousFingerprint("P4", "2024-01-15", "12.5", "Solvent")
	b := HazardousFingerprint("P4", "2024-01-15", "12.5", "Solvent")

	assert.Equal(t, a, b)
	assert.Equal(t, Fingerprint("P4-hazardous-2024-01-15-12.5-Solvent"), a)
}

func TestFingerprint_Solid(t *testing.T) {
	fp := SolidFingerprint("P7", "2024-02-01", "P-500", "Concrete")

	assert.Equal(t, Fingerprint("P7-solid-2024-02-01-P-500-Concrete"), fp)
}

func TestRequestID_Sanitised(t *testing.T) {
	now := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		fp   Fingerprint
		want string
	}{
		{
			name: "dots replaced",
			fp:   HazardousFingerprint("P4", "2024-01-15", "12.5", "Solvent"),
			want: "P4-hazardous-2024-01-15-12_5-Solvent-2024-01-16",
		},
		{
			name: "spaces and unicode replaced",
			fp:   SolidFingerprint("P4", "2024-01-15", "P-500", "Mixed débris"),
			want: "P4-solid-2024-01-15-P-500-Mixed_d_bris-2024-01-16",
		},
		{
			name: "clean input untouched",
			fp:   SolidFingerprint("P4", "2024-01-15", "P-500", "Concrete"),
			want: "P4-solid-2024-01-15-P-500-Concrete-2024-01-16",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestID(tt.fp, now))
		})
	}
}

func TestRequestID_UsesAttemptDate(t *testing.T) {
	fp := HazardousFingerprint("P4", "2024-01-15", "1.0", "Oil")

	day1 := requestID(fp, time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC))
	day2 := requestID(fp, time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC))

	assert.NotEqual(t, day1, day2, "attempts across midnight get distinct keys")
}
