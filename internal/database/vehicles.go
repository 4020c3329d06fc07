package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

const vehiclesSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id               BIGSERIAL PRIMARY KEY,
	scrape_datetime  TIMESTAMPTZ NOT NULL,
	city             TEXT NOT NULL,
	pickup_date      TIMESTAMPTZ NOT NULL,
	return_date      TIMESTAMPTZ NOT NULL,
	vehicle_name     TEXT,
	vehicle_type     TEXT,
	seats            TEXT,
	doors            TEXT,
	transmission     TEXT,
	excess           TEXT,
	fuel_type        TEXT,
	logo_url         TEXT,
	price_per_day    TEXT,
	total_price      TEXT,
	currency         TEXT NOT NULL DEFAULT 'AUD',
	detail_url       TEXT,
	screenshot_path  TEXT,
	depot_code       TEXT,
	supplier_code    TEXT,
	city_latitude    NUMERIC,
	city_longitude   NUMERIC
);
CREATE INDEX IF NOT EXISTS idx_vehicles_scrape_date ON vehicles ((DATE(scrape_datetime)));
CREATE INDEX IF NOT EXISTS idx_vehicles_city ON vehicles (city);
CREATE INDEX IF NOT EXISTS idx_vehicles_combination ON vehicles (city, pickup_date, return_date);
`

// InitSchema creates the vehicles table and its indexes if they are missing.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, vehiclesSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (db *DB) InsertVehicle(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (
			scrape_datetime, city, pickup_date, return_date,
			vehicle_name, vehicle_type, seats, doors, transmission, excess,
			fuel_type, logo_url, price_per_day, total_price, currency,
			detail_url, screenshot_path, depot_code, supplier_code,
			city_latitude, city_longitude
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`

	err := db.pool.QueryRow(ctx, query,
		v.ScrapeDatetime, v.City, v.PickupDate, v.ReturnDate,
		v.VehicleName, v.VehicleType, v.Seats, v.Doors, v.Transmission, v.Excess,
		v.FuelType, v.LogoURL, v.PricePerDay, v.TotalPrice, v.Currency,
		v.DetailURL, v.ScreenshotPath, v.DepotCode, v.SupplierCode,
		v.CityLatitude, v.CityLongitude,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", err)
	}
	return nil
}

// DeleteForCombination removes rows from an earlier attempt of the same
// (scrape day, city, pickup, return) combination so re-runs stay idempotent.
// Returns the number of rows removed.
func (db *DB) DeleteForCombination(ctx context.Context, scrapeDay time.Time, city string, pickup, ret time.Time) (int64, error) {
	query := `
		DELETE FROM vehicles
		WHERE DATE(scrape_datetime) = DATE($1)
		  AND city = $2
		  AND pickup_date = $3
		  AND return_date = $4`

	tag, err := db.pool.Exec(ctx, query, scrapeDay, city, pickup, ret)
	if err != nil {
		return 0, fmt.Errorf("failed to delete combination rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteForPickupDate removes every row with the given pickup day and
// returns the distinct screenshot references those rows held, so the caller
// can purge the matching objects from storage.
func (db *DB) DeleteForPickupDate(ctx context.Context, pickup time.Time) (int64, []string, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT DISTINCT screenshot_path FROM vehicles
		WHERE DATE(pickup_date) = DATE($1) AND screenshot_path IS NOT NULL`, pickup)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list screenshot refs: %w", err)
	}
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("failed to scan screenshot ref: %w", err)
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to read screenshot refs: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`DELETE FROM vehicles WHERE DATE(pickup_date) = DATE($1)`, pickup)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to delete pickup date rows: %w", err)
	}
	return tag.RowsAffected(), refs, nil
}

const vehicleColumns = `
	id, scrape_datetime, city, pickup_date, return_date,
	vehicle_name, vehicle_type, seats, doors, transmission, excess,
	fuel_type, logo_url, price_per_day, total_price, currency,
	detail_url, screenshot_path, depot_code, supplier_code,
	city_latitude, city_longitude`

func scanVehicle(row interface{ Scan(...any) error }) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID, &v.ScrapeDatetime, &v.City, &v.PickupDate, &v.ReturnDate,
		&v.VehicleName, &v.VehicleType, &v.Seats, &v.Doors, &v.Transmission, &v.Excess,
		&v.FuelType, &v.LogoURL, &v.PricePerDay, &v.TotalPrice, &v.Currency,
		&v.DetailURL, &v.ScreenshotPath, &v.DepotCode, &v.SupplierCode,
		&v.CityLatitude, &v.CityLongitude,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// VehiclesByDate returns all rows scraped on the given day. An empty city
// matches every city.
func (db *DB) VehiclesByDate(ctx context.Context, day time.Time, city string) ([]*models.Vehicle, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM vehicles WHERE DATE(scrape_datetime) = DATE($1) AND ($2 = '' OR city = $2) ORDER BY id`,
		vehicleColumns)

	rows, err := db.pool.Query(ctx, query, day, city)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles by date: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vehicles: %w", err)
	}
	return vehicles, nil
}

// VehiclesWithoutScreenshots returns rows from the given scrape day that
// have no screenshot reference yet, for the backfill pass.
func (db *DB) VehiclesWithoutScreenshots(ctx context.Context, day time.Time) ([]*models.Vehicle, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM vehicles
		WHERE DATE(scrape_datetime) = DATE($1) AND screenshot_path IS NULL
		ORDER BY city, pickup_date, return_date, id`, vehicleColumns)

	rows, err := db.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles without screenshots: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vehicles: %w", err)
	}
	return vehicles, nil
}

func (db *DB) UpdateVehicleScreenshot(ctx context.Context, id int64, ref string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE vehicles SET screenshot_path = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("failed to update screenshot reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %d not found", id)
	}
	return nil
}

// UpdateScreenshotPathForCombination rewrites the screenshot reference for
// every row of one combination on one scrape day, used after the page shot
// is uploaded once per combination.
func (db *DB) UpdateScreenshotPathForCombination(ctx context.Context, scrapeDay time.Time, city string, pickup, ret time.Time, ref string) (int64, error) {
	query := `
		UPDATE vehicles SET screenshot_path = $5
		WHERE DATE(scrape_datetime) = DATE($1)
		  AND city = $2
		  AND pickup_date = $3
		  AND return_date = $4`

	tag, err := db.pool.Exec(ctx, query, scrapeDay, city, pickup, ret, ref)
	if err != nil {
		return 0, fmt.Errorf("failed to update combination screenshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClearAll truncates the vehicles table, returning how many rows existed
// beforehand. Identity restarts so a fresh run begins at id 1.
func (db *DB) ClearAll(ctx context.Context) (int64, error) {
	var count int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `TRUNCATE TABLE vehicles RESTART IDENTITY CASCADE`); err != nil {
		return 0, fmt.Errorf("failed to truncate vehicles: %w", err)
	}
	return count, nil
}

// AllScreenshotRefs returns every distinct screenshot reference currently
// stored, for storage purges that accompany a full clear.
func (db *DB) AllScreenshotRefs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT screenshot_path FROM vehicles WHERE screenshot_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list screenshot refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan screenshot ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read screenshot refs: %w", err)
	}
	return refs, nil
}
