package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bin-dates/models"
)

func TestObserveRefresh(t *testing.T) {
	m := New()
	m.ObserveRefresh(20*time.Millisecond, nil)
	m.ObserveRefresh(30*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RefreshTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFailures))
}

func TestSetSnapshot(t *testing.T) {
	m := New()
	domestic := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	refreshed := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	m.SetSnapshot(models.Snapshot{
		Result: models.CollectionResult{
			Domestic:  domestic,
			Recycling: domestic.AddDate(0, 0, 7),
			Garden:    domestic.AddDate(0, 0, 14),
		},
		IsToday:     map[models.WasteStream]bool{models.Domestic: true},
		RefreshedAt: refreshed,
	})

	assert.Equal(t, float64(refreshed.Unix()), testutil.ToFloat64(m.LastSuccess))
	assert.Equal(t, float64(domestic.Unix()), testutil.ToFloat64(m.NextCollection.WithLabelValues("domestic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionIsToday.WithLabelValues("domestic")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CollectionIsToday.WithLabelValues("garden")))
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Each instance owns its registry, so building two must not panic.
	require.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRefresh(time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "bin_dates_refresh_total 1")
}
