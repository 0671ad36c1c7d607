package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware_CountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	counter := HTTPRequestCounter.WithLabelValues("/items/:id", http.MethodGet, "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecordImageUpload(t *testing.T) {
	ok := ImageUploadCounter.WithLabelValues("local", "ok")
	failed := ImageUploadCounter.WithLabelValues("local", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	RecordImageUpload("local", nil)
	RecordImageUpload("local", errors.New("disk full"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestTrackDBOperation(t *testing.T) {
	before := testutil.CollectAndCount(DBOperationDuration)
	TrackDBOperation("test_operation")(time.Now())
	assert.Equal(t, before+1, testutil.CollectAndCount(DBOperationDuration))

	SetInfo("test", "file")
	assert.Equal(t, 1.0, testutil.ToFloat64(InfoGauge.WithLabelValues("test", "file")))
}
