package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozrentals/drivenow-scraper/internal/models"
	"github.com/ozrentals/drivenow-scraper/internal/scraper"
)

func combo(city string) models.Combination {
	return models.Combination{
		City:   models.City{Name: city},
		Pickup: time.Date(2025, 11, 18, 10, 0, 0, 0, time.UTC),
		Return: time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC),
	}
}

func TestProgressSnapshotLifecycle(t *testing.T) {
	p := NewProgress()
	assert.Equal(t, "idle", p.Snapshot().State)

	p.RunStarted("run-1", 4)
	s := p.Snapshot()
	assert.Equal(t, "running", s.State)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 4, s.Total)
	assert.Zero(t, s.Done)

	p.CombinationDone("run-1", combo("Sydney"), 10, nil)
	p.CombinationDone("run-1", combo("Melbourne"), 0, fmt.Errorf("blocked"))
	s = p.Snapshot()
	assert.Equal(t, 2, s.Done)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 10, s.Inserted)
	assert.Equal(t, "Melbourne", s.LastCity)
	assert.InDelta(t, 50.0, s.PercentDone, 0.01)

	p.RunFinished("run-1", scraper.Summary{})
	assert.Equal(t, "finished", p.Snapshot().State)
}

func TestHealthzEndpoint(t *testing.T) {
	srv := httptest.NewServer(Router(NewProgress()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	p := NewProgress()
	p.RunStarted("run-9", 2)
	p.CombinationDone("run-9", combo("Brisbane"), 7, nil)

	srv := httptest.NewServer(Router(p))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "run-9", snap.RunID)
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 1, snap.Done)
	assert.Equal(t, 7, snap.Inserted)
	assert.Equal(t, "Brisbane", snap.LastCity)
}
