// Package watermark prepares a photo for upload: it resolves the site's
// surveyed coordinates and attaches the caption that identifies the unit,
// time, position, user, and site. Stamping fails when the site has no
// known position, mirroring a device without a GPS fix.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

// ErrNoPosition means no coordinates are available for the site.
var ErrNoPosition = errors.New("no position available")

// Position is a geographic coordinate pair.
type Position struct {
	Lat float64
	Lng float64
}

// Locator resolves the position a photo should be stamped with.
type Locator interface {
	Locate(ctx context.Context, site string) (Position, error)
}

// siteLocator resolves positions from the configured site survey data.
type siteLocator struct {
	sites map[string]Position
}

// NewSiteLocator creates a Locator backed by the configured sites.
func NewSiteLocator(sites []config.SiteConfig) Locator {
	positions := make(map[string]Position, len(sites))

	for _, site := range sites {
		positions[site.ID] = Position{Lat: site.Lat, Lng: site.Lng}
	}

	return &siteLocator{sites: positions}
}

// Locate returns the surveyed position of the site.
func (l *siteLocator) Locate(_ context.Context, site string) (Position, error) {
	pos, ok := l.sites[site]
	if !ok {
		return Position{}, fmt.Errorf("%w for site %q", ErrNoPosition, site)
	}

	return pos, nil
}

// Info identifies the submission a photo belongs to.
type Info struct {
	Unit      string
	User      string
	Site      string
	WasteType string
}

// Stamped is a photo prepared for upload.
type Stamped struct {
	// Data is the photo bytes to upload.
	Data []byte

	// Name is the generated upload filename.
	Name string

	// Caption is the stamp text, one line per entry.
	Caption []string
}

// Stamper prepares a photo for upload. Implementations may fail, e.g.
// when no position is available; the submission pipeline treats that as
// a non-authoritative failure.
type Stamper interface {
	Stamp(ctx context.Context, photoPath string, info Info) (*Stamped, error)
}

// Compile-time interface check.
var _ Stamper = (*fileStamper)(nil)

type fileStamper struct {
	log     logrus.FieldLogger
	locator Locator
	clk     clock.Clock
}

// NewStamper creates a Stamper that reads photos from the filesystem and
// resolves positions through the given Locator.
func NewStamper(
	log logrus.FieldLogger,
	locator Locator,
	clk clock.Clock,
) Stamper {
	return &fileStamper{
		log:     log.WithField("component", "watermark"),
		locator: locator,
		clk:     clk,
	}
}

// Stamp reads the photo and builds its caption.
func (s *fileStamper) Stamp(ctx context.Context, photoPath string, info Info) (*Stamped, error) {
	pos, err := s.locator.Locate(ctx, info.Site)
	if err != nil {
		return nil, fmt.Errorf("locating photo: %w", err)
	}

	data, err := os.ReadFile(photoPath)
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("photo %q is empty", photoPath)
	}

	now := s.clk.Now()

	return &Stamped{
		Data: data,
		Name: fmt.Sprintf("%s_%s_%d.jpg", info.Site, info.WasteType, now.UnixMilli()),
		Caption: []string{
			info.Unit,
			now.Format("2006-01-02 15:04"),
			fmt.Sprintf("Lat:%.4f Lng:%.4f", pos.Lat, pos.Lng),
			"User:" + info.User,
			"Pkg:" + info.Site,
		},
	}, nil
}
