package history

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/dedup"
)

// recordsClient implements backend.Client returning canned rows.
type recordsClient struct {
	rows [][]any
	err  error

	gotSite, gotWasteType, gotFrom, gotTo string
}

var _ backend.Client = (*recordsClient)(nil)

func (c *recordsClient) Records(ctx context.Context, site, wasteType, from, to string) ([][]any, error) {
	c.gotSite, c.gotWasteType, c.gotFrom, c.gotTo = site, wasteType, from, to

	return c.rows, c.err
}

func (c *recordsClient) Login(ctx context.Context, email, idToken string) (*backend.LoginResult, error) {
	return nil, nil
}

func (c *recordsClient) ValidateToken(ctx context.Context) (*backend.ValidateResult, error) {
	return nil, nil
}

func (c *recordsClient) RefreshToken(ctx context.Context) (*backend.RefreshResult, error) {
	return nil, nil
}

func (c *recordsClient) Upload(ctx context.Context, req *backend.UploadRequest) (*backend.UploadResult, error) {
	return nil, nil
}

func (c *recordsClient) Users(ctx context.Context) ([]backend.User, error)   { return nil, nil }
func (c *recordsClient) ApproveUser(ctx context.Context, email string) error { return nil }
func (c *recordsClient) RejectUser(ctx context.Context, email string) error  { return nil }
func (c *recordsClient) UpdateUserRole(ctx context.Context, email, role string) error {
	return nil
}
func (c *recordsClient) DeleteUser(ctx context.Context, email string) error { return nil }

func testService(cli backend.Client) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewService(log, cli)
}

func TestFetch_ParsesRows(t *testing.T) {
	cli := &recordsClient{rows: [][]any{
		{"Date", "Volume", "Waste", "Package", "User", "Photo"},
		{"2024-01-15", 12.5, "Solvent", "P4", "crew@example.com", "https://example.com/p.jpg"},
		{"2024-01-16T00:00:00Z", "3", "Oil", "P4", "lead@example.com", nil},
	}}

	records, err := testService(cli).Fetch(
		context.Background(), "P4", dedup.WasteTypeHazardous, "2024-01-01", "2024-01-31",
	)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "P4", cli.gotSite)
	assert.Equal(t, dedup.WasteTypeHazardous, cli.gotWasteType)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), records[0].Date)
	assert.InDelta(t, 12.5, records[0].Volume, 0.001)
	assert.Equal(t, "Solvent", records[0].Waste)
	assert.Equal(t, "crew@example.com", records[0].User)

	assert.InDelta(t, 3.0, records[1].Volume, 0.001)
	assert.Empty(t, records[1].PhotoURL)
}

func TestFetch_SolidUsesLocationColumn(t *testing.T) {
	cli := &recordsClient{rows: [][]any{
		{"Date", "Location", "Waste", "Package", "User", "Photo"},
		{"2024-01-15", "P-500", "Concrete", "P4", "crew@example.com", ""},
	}}

	records, err := testService(cli).Fetch(
		context.Background(), "P4", dedup.WasteTypeSolid, "2024-01-01", "2024-01-31",
	)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "P-500", records[0].Location)
	assert.Zero(t, records[0].Volume)
}

func TestFetch_HeaderOnlyMeansNoRecords(t *testing.T) {
	cli := &recordsClient{rows: [][]any{
		{"Date", "Volume", "Waste", "Package", "User", "Photo"},
	}}

	records, err := testService(cli).Fetch(
		context.Background(), "P4", dedup.WasteTypeHazardous, "2024-01-01", "2024-01-31",
	)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_RangeValidation(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		wantErr  string
	}{
		{"bad from", "01/01/2024", "2024-01-31", "invalid from date"},
		{"bad to", "2024-01-01", "tomorrow", "invalid to date"},
		{"inverted", "2024-01-31", "2024-01-01", "must not be after"},
		{"too wide", "2024-01-01", "2024-03-01", "exceeds 31 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testService(&recordsClient{}).Fetch(
				context.Background(), "P4", dedup.WasteTypeHazardous, tt.from, tt.to,
			)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFilterWaste(t *testing.T) {
	records := []Record{
		{Waste: "Waste Solvent"},
		{Waste: "Used Oil"},
		{Waste: "solvent residue"},
	}

	filtered := FilterWaste(records, "SOLVENT")
	require.Len(t, filtered, 2)

	assert.Equal(t, records, FilterWaste(records, ""))
}

func TestSummarize_Hazardous(t *testing.T) {
	records := []Record{
		{Date: date(2024, 1, 15), Volume: 10, Waste: "Solvent", User: "a@x.com"},
		{Date: date(2024, 1, 15), Volume: 5, Waste: "Oil", User: "b@x.com"},
		{Date: date(2024, 1, 16), Volume: 2.5, Waste: "Solvent", User: "a@x.com"},
	}

	summary := Summarize(records, dedup.WasteTypeHazardous, 2)

	assert.Equal(t, 3, summary.Entries)
	assert.InDelta(t, 17.5, summary.TotalVolume, 0.001)
	assert.Equal(t, "Solvent", summary.TopWaste)
	assert.InDelta(t, 1.5, summary.AvgPerDay, 0.001)
	assert.Equal(t, 2, summary.ByWaste["Solvent"])
	assert.InDelta(t, 15.0, summary.Daily["Jan 15"], 0.001)
}

func TestSummarize_SolidCountsEntries(t *testing.T) {
	records := []Record{
		{Date: date(2024, 1, 15), Location: "P-500", Waste: "Concrete", User: "a@x.com"},
		{Date: date(2024, 1, 15), Location: "P-510", Waste: "Concrete", User: "a@x.com"},
	}

	summary := Summarize(records, dedup.WasteTypeSolid, 1)

	assert.Equal(t, 2, summary.Entries)
	assert.InDelta(t, 2.0, summary.TotalVolume, 0.001, "solid records count one unit each")
}

func TestTopContributors(t *testing.T) {
	records := []Record{
		{Date: date(2024, 1, 15), Volume: 1, Waste: "Oil", User: "b@x.com"},
		{Date: date(2024, 1, 15), Volume: 1, Waste: "Oil", User: "a@x.com"},
		{Date: date(2024, 1, 15), Volume: 1, Waste: "Oil", User: "a@x.com"},
		{Date: date(2024, 1, 15), Volume: 1, Waste: "Oil", User: "c@x.com"},
	}

	summary := Summarize(records, dedup.WasteTypeHazardous, 1)

	top := summary.TopContributors(2)
	require.Len(t, top, 2)
	assert.Equal(t, "a@x.com", top[0])
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
