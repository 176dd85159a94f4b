package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordNotification(t *testing.T) {
	before := testutil.ToFloat64(Notifications.WithLabelValues("email", "sent"))

	RecordNotification("email", "sent", 20*time.Millisecond)

	after := testutil.ToFloat64(Notifications.WithLabelValues("email", "sent"))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestRecordAccessEvent(t *testing.T) {
	ok := testutil.ToFloat64(AccessEvents.WithLabelValues("inserted"))
	bad := testutil.ToFloat64(AccessEvents.WithLabelValues("error"))

	RecordAccessEvent(nil)
	RecordAccessEvent(errors.New("disk full"))

	if got := testutil.ToFloat64(AccessEvents.WithLabelValues("inserted")); got != ok+1 {
		t.Errorf("inserted = %v, want %v", got, ok+1)
	}
	if got := testutil.ToFloat64(AccessEvents.WithLabelValues("error")); got != bad+1 {
		t.Errorf("error = %v, want %v", got, bad+1)
	}
}

func TestHandler_ExposesPipelineMetrics(t *testing.T) {
	TrackingJobsDropped.Add(0)
	RecordGeoLookup("ipapi", "coordinates")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"docbeacon_tracking_jobs_dropped_total", "docbeacon_geo_lookups_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}
