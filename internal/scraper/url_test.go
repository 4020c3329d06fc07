package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

func sydneyCombo() models.Combination {
	return models.Combination{
		City: models.City{
			Name:           "Sydney Airport",
			Latitude:       -33.9399228,
			Longitude:      151.1752764,
			LocationString: "Sydney Airport (SYD), NSW",
			Radius:         30,
		},
		Pickup: time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC),
		Return: time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildResultsURL(t *testing.T) {
	url, err := BuildResultsURL("https://www.drivenow.com.au/search", sydneyCombo())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://www.drivenow.com.au/search/"))
	assert.Contains(t, url, "/2025-11-18/10:00/2025-11-19/10:00/")
	assert.Contains(t, url, "/-33.9399228,151.1752764,2/-33.9399228,151.1752764,2/")
	assert.Contains(t, url, "/AU/30?")
	assert.Contains(t, url, "radius=30")
	assert.Contains(t, url, "pickupCountry=AU")
	assert.Contains(t, url, "returnCountry=AU")
	assert.Contains(t, url, "bookingEngine=ube")
	assert.Contains(t, url, "affiliateCode=drivenow")

	// Location appears twice, commas kept, spaces and parens escaped.
	enc := "Sydney%20Airport%20%28SYD%29,%20NSW"
	assert.Equal(t, 2, strings.Count(url, enc))
}

func TestBuildResultsURLTrimsTrailingSlash(t *testing.T) {
	url, err := BuildResultsURL("https://www.drivenow.com.au/search/", sydneyCombo())
	require.NoError(t, err)
	assert.NotContains(t, url, "search//")
}

func TestBuildResultsURLDefaultRadius(t *testing.T) {
	combo := sydneyCombo()
	combo.City.Radius = 0
	url, err := BuildResultsURL("https://www.drivenow.com.au/search", combo)
	require.NoError(t, err)
	assert.Contains(t, url, "radius=3&")
	// The trailing /AU/30 path segment stays fixed regardless of radius.
	assert.Contains(t, url, "/AU/30?")
}

func TestBuildResultsURLMissingData(t *testing.T) {
	combo := sydneyCombo()
	combo.City.Latitude = 0
	combo.City.Longitude = 0
	_, err := BuildResultsURL("https://www.drivenow.com.au/search", combo)
	assert.Error(t, err)

	combo = sydneyCombo()
	combo.City.LocationString = ""
	_, err = BuildResultsURL("https://www.drivenow.com.au/search", combo)
	assert.Error(t, err)
}

func TestEncodeLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sydney, NSW", "Sydney,%20NSW"},
		{"Gold Coast (OOL), QLD", "Gold%20Coast%20%28OOL%29,%20QLD"},
		{"plain", "plain"},
		{"a-b_c.d~e", "a-b_c.d~e"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, encodeLocation(tt.in))
	}
}

func TestScreenshotName(t *testing.T) {
	name := ScreenshotName(sydneyCombo(), time.Date(2025, 11, 18, 9, 30, 15, 0, time.UTC))
	assert.Equal(t, "sydney_airport_2025-11-18_2025-11-19_20251118_093015.png", name)
}
