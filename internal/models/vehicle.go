package models

import (
	"time"
)

// DefaultCurrency is applied to every listing unless a record overrides it.
const DefaultCurrency = "AUD"

// City describes one configured pickup location.
type City struct {
	Name           string  `yaml:"name" json:"name"`
	Latitude       float64 `yaml:"latitude" json:"latitude"`
	Longitude      float64 `yaml:"longitude" json:"longitude"`
	LocationString string  `yaml:"location_string" json:"location_string"`
	Radius         int     `yaml:"radius" json:"radius,omitempty"`
}

// Combination is one unit of work: a city searched for a single
// pickup/return date pair. All listings extracted for a combination share
// one results-page screenshot.
type Combination struct {
	City   City      `json:"city"`
	Pickup time.Time `json:"pickup"`
	Return time.Time `json:"return"`
}

// Vehicle is one listing row as persisted. Optional fields extracted from
// unreliable markup are pointers; nil means the field could not be resolved
// on that card, which is still a valid record.
type Vehicle struct {
	ID             int64     `json:"id"`
	ScrapeDatetime time.Time `json:"scrape_datetime"`
	City           string    `json:"city"`
	PickupDate     time.Time `json:"pickup_date"`
	ReturnDate     time.Time `json:"return_date"`
	VehicleName    *string   `json:"vehicle_name"`
	VehicleType    *string   `json:"vehicle_type"`
	Seats          *string   `json:"seats"`
	Doors          *string   `json:"doors"`
	Transmission   *string   `json:"transmission"`
	Excess         *string   `json:"excess"`
	FuelType       *string   `json:"fuel_type"`
	LogoURL        *string   `json:"logo_url"`
	PricePerDay    *string   `json:"price_per_day"`
	TotalPrice     *string   `json:"total_price"`
	Currency       string    `json:"currency"`
	DetailURL      *string   `json:"detail_url"`
	ScreenshotPath *string   `json:"screenshot_path"`
	DepotCode      *string   `json:"depot_code"`
	SupplierCode   *string   `json:"supplier_code"`
	CityLatitude   *float64  `json:"city_latitude"`
	CityLongitude  *float64  `json:"city_longitude"`
}

func NewVehicle(combo Combination, scrapedAt time.Time) *Vehicle {
	lat := combo.City.Latitude
	lng := combo.City.Longitude
	return &Vehicle{
		ScrapeDatetime: scrapedAt,
		City:           combo.City.Name,
		PickupDate:     combo.Pickup,
		ReturnDate:     combo.Return,
		Currency:       DefaultCurrency,
		CityLatitude:   &lat,
		CityLongitude:  &lng,
	}
}
