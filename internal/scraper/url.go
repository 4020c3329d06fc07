package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// defaultSearchRadius covers cities configured without an explicit radius;
// the fixed "/AU/30" path segment is unrelated to it.
const defaultSearchRadius = 3

// BuildResultsURL assembles the search results URL for one city and date
// pair. The site encodes pickup and return location twice (they are the same
// for round trips) and expects the location string percent-encoded with
// commas left intact.
func BuildResultsURL(baseURL string, combo models.Combination) (string, error) {
	city := combo.City
	if city.Latitude == 0 && city.Longitude == 0 {
		return "", fmt.Errorf("city %q has no coordinates", city.Name)
	}
	if city.LocationString == "" {
		return "", fmt.Errorf("city %q has no location string", city.Name)
	}

	radius := city.Radius
	if radius <= 0 {
		radius = defaultSearchRadius
	}

	lat := strconv.FormatFloat(city.Latitude, 'f', -1, 64)
	lng := strconv.FormatFloat(city.Longitude, 'f', -1, 64)
	geo := fmt.Sprintf("%s,%s,2", lat, lng)
	loc := encodeLocation(city.LocationString)

	path := strings.Join([]string{
		strings.TrimRight(baseURL, "/"),
		combo.Pickup.Format("2006-01-02"),
		combo.Pickup.Format("15:04"),
		combo.Return.Format("2006-01-02"),
		combo.Return.Format("15:04"),
		geo,
		geo,
		loc,
		loc,
		"AU",
		"30",
	}, "/")

	return fmt.Sprintf(
		"%s?radius=%d&pickupCountry=AU&returnCountry=AU&bookingEngine=ube&affiliateCode=drivenow",
		path, radius,
	), nil
}

// encodeLocation percent-encodes a location string for use as a path
// segment, keeping commas literal because the site expects them unescaped.
func encodeLocation(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreservedByte(c) || c == ',' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreservedByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// ScreenshotName yields a stable, filesystem-safe screenshot filename for a
// combination at a given scrape time.
func ScreenshotName(combo models.Combination, scrapedAt time.Time) string {
	city := strings.ToLower(strings.ReplaceAll(combo.City.Name, " ", "_"))
	return fmt.Sprintf("%s_%s_%s_%s.png",
		city,
		combo.Pickup.Format("2006-01-02"),
		combo.Return.Format("2006-01-02"),
		scrapedAt.Format("20060102_150405"),
	)
}
