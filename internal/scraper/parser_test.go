package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

const fullCardHTML = `
<div class="veh-list-container">
  <div class="fuel-type-tag--container">Toyota Corolla or similar</div>
  <span class="fuel-type-tag">Petrol</span>
  <div class="vehicle-type">Compact</div>
  <div class="features">
    <span class="feature-item">5 Seats</span>
    <span class="feature-item">4 Doors</span>
    <span class="feature-item">2 Bags</span>
    <span class="feature-item">Automatic</span>
    <span class="feature-item">$3,500</span>
  </div>
  <img class="img-responsive" src="https://cdn.example.com/logos/hertz.png">
  <span class="total-price-number">$89.50</span>
  <span class="perdayprice">$89.50/day</span>
  <a href="/book/abc123">Book now</a>
</div>`

func testVehicle() *models.Vehicle {
	combo := models.Combination{
		City:   models.City{Name: "Sydney Airport", Latitude: -33.94, Longitude: 151.18},
		Pickup: time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC),
		Return: time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC),
	}
	return models.NewVehicle(combo, time.Now())
}

func strOf(t *testing.T, p *string) string {
	t.Helper()
	require.NotNil(t, p)
	return *p
}

func TestParseCardFullListing(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	require.NoError(t, p.ParseCard(fullCardHTML, v))

	assert.Equal(t, "Toyota Corolla or similar", strOf(t, v.VehicleName))
	assert.Equal(t, "Petrol", strOf(t, v.FuelType))
	assert.Equal(t, "Compact", strOf(t, v.VehicleType))
	assert.Equal(t, "5 Seats", strOf(t, v.Seats))
	assert.Equal(t, "4 Doors", strOf(t, v.Doors))
	assert.Equal(t, "Automatic", strOf(t, v.Transmission))
	assert.Equal(t, "$3,500", strOf(t, v.Excess))
	assert.Equal(t, "$89.50", strOf(t, v.TotalPrice))
	assert.Equal(t, "$89.50/day", strOf(t, v.PricePerDay))
	assert.Equal(t, "https://cdn.example.com/logos/hertz.png", strOf(t, v.LogoURL))
}

func TestParseCardLuggageCellNotStored(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	require.NoError(t, p.ParseCard(fullCardHTML, v))

	for _, field := range []*string{v.Seats, v.Doors, v.Transmission, v.Excess} {
		if field != nil {
			assert.NotEqual(t, "2 Bags", *field)
		}
	}
}

func TestParseCardMissingFieldsStayNil(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	html := `<div class="veh-list-container"><div class="fuel-type-tag--container">Mystery Car</div></div>`
	require.NoError(t, p.ParseCard(html, v))

	assert.Equal(t, "Mystery Car", strOf(t, v.VehicleName))
	assert.Nil(t, v.FuelType)
	assert.Nil(t, v.Seats)
	assert.Nil(t, v.TotalPrice)
	assert.Nil(t, v.LogoURL)
	// Run metadata is untouched by parsing.
	assert.Equal(t, "Sydney Airport", v.City)
	assert.Equal(t, models.DefaultCurrency, v.Currency)
}

func TestParseCardFallbackSelectors(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	html := `<div>
		<h3>Kia Cerato</h3>
		<div class="veh-category">Sedan</div>
		<span class="total-price">$120.00</span>
		<span class="per-day-price">$60.00</span>
	</div>`
	require.NoError(t, p.ParseCard(html, v))

	assert.Equal(t, "Kia Cerato", strOf(t, v.VehicleName))
	assert.Equal(t, "Sedan", strOf(t, v.VehicleType))
	assert.Equal(t, "$120.00", strOf(t, v.TotalPrice))
	assert.Equal(t, "$60.00", strOf(t, v.PricePerDay))
}

func TestParseCardFreeTextFallback(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	html := `<div class="veh-list-container">
		<h3>Old Layout Wagon</h3>
		<p>Roomy wagon with 7 seats and 5 doors, automatic transmission. Excess: $4,000.</p>
	</div>`
	require.NoError(t, p.ParseCard(html, v))

	assert.Equal(t, "7", strOf(t, v.Seats))
	assert.Equal(t, "5", strOf(t, v.Doors))
	assert.Equal(t, "Automatic", strOf(t, v.Transmission))
	assert.Equal(t, "$4,000", strOf(t, v.Excess))
}

func TestParseCardFreeTextSkippedWhenCellsPresent(t *testing.T) {
	p := NewCardParser()
	v := testVehicle()
	html := `<div class="veh-list-container">
		<span class="feature-item">5 Seats</span>
		<span class="feature-item">4 Doors</span>
		<p>Mentions 99 seats in marketing copy.</p>
	</div>`
	require.NoError(t, p.ParseCard(html, v))
	assert.Equal(t, "5 Seats", strOf(t, v.Seats))
}

func TestExtractDetailURL(t *testing.T) {
	p := NewCardParser()
	pageURL := "https://www.drivenow.com.au/search/2025-11-18/10:00/x"

	t.Run("card anchor relative", func(t *testing.T) {
		u := p.ExtractDetailURL(`<div><a href="/book/abc">go</a></div>`, pageURL, "")
		assert.Equal(t, "https://www.drivenow.com.au/book/abc", strOf(t, u))
	})

	t.Run("page fallback used when card has no link", func(t *testing.T) {
		u := p.ExtractDetailURL(`<div>no links</div>`, pageURL, "https://www.drivenow.com.au/book/from-page")
		assert.Equal(t, "https://www.drivenow.com.au/book/from-page", strOf(t, u))
	})

	t.Run("data attribute", func(t *testing.T) {
		u := p.ExtractDetailURL(`<div><button data-url="/book/data" type="button">go</button></div>`, pageURL, "")
		assert.Equal(t, "https://www.drivenow.com.au/book/data", strOf(t, u))
	})

	t.Run("onclick handler", func(t *testing.T) {
		u := p.ExtractDetailURL(`<div><button onclick="window.open('/book/click')">go</button></div>`, pageURL, "")
		assert.Equal(t, "https://www.drivenow.com.au/book/click", strOf(t, u))
	})

	t.Run("javascript href rejected", func(t *testing.T) {
		u := p.ExtractDetailURL(`<div><a href="javascript:void(0)">go</a></div>`, pageURL, "")
		assert.Nil(t, u)
	})

	t.Run("nothing found", func(t *testing.T) {
		assert.Nil(t, p.ExtractDetailURL(`<div>plain</div>`, pageURL, ""))
	})
}
