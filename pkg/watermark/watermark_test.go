package watermark

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

func testStamper(t *testing.T) (Stamper, *clock.Mock) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))

	locator := NewSiteLocator([]config.SiteConfig{
		{ID: "P4", Name: "Package 4", Lat: 21.0245, Lng: 105.8412},
	})

	return NewStamper(log, locator, mock), mock
}

func TestStamp(t *testing.T) {
	stamper, mock := testStamper(t)

	photo := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	stamped, err := stamper.Stamp(context.Background(), photo, Info{
		Unit:      "HDJV",
		User:      "crew@example.com",
		Site:      "P4",
		WasteType: "hazardous",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("jpeg-bytes"), stamped.Data)
	assert.Equal(t,
		"P4_hazardous_"+strconv.FormatInt(mock.Now().UnixMilli(), 10)+".jpg",
		stamped.Name)

	require.Len(t, stamped.Caption, 5)
	assert.Equal(t, "HDJV", stamped.Caption[0])
	assert.Equal(t, "2024-01-15 10:30", stamped.Caption[1])
	assert.Equal(t, "Lat:21.0245 Lng:105.8412", stamped.Caption[2])
	assert.Equal(t, "User:crew@example.com", stamped.Caption[3])
	assert.Equal(t, "Pkg:P4", stamped.Caption[4])
}

func TestStamp_UnknownSite(t *testing.T) {
	stamper, _ := testStamper(t)

	photo := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	_, err := stamper.Stamp(context.Background(), photo, Info{Site: "P9"})
	require.ErrorIs(t, err, ErrNoPosition)
}

func TestStamp_MissingPhoto(t *testing.T) {
	stamper, _ := testStamper(t)

	_, err := stamper.Stamp(context.Background(),
		filepath.Join(t.TempDir(), "missing.jpg"), Info{Site: "P4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading photo")
}

func TestStamp_EmptyPhoto(t *testing.T) {
	stamper, _ := testStamper(t)

	photo := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(photo, nil, 0o644))

	_, err := stamper.Stamp(context.Background(), photo, Info{Site: "P4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}
