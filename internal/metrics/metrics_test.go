package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSynthesisStarted(t *testing.T) {
	before := testutil.ToFloat64(synthesisRequests.WithLabelValues("test-engine", "OK"))

	done := SynthesisStarted("test-engine")
	if got := testutil.ToFloat64(synthesisInFlight); got < 1 {
		t.Errorf("in flight = %v", got)
	}
	done("")

	if got := testutil.ToFloat64(synthesisRequests.WithLabelValues("test-engine", "OK")); got != before+1 {
		t.Errorf("requests = %v, want %v", got, before+1)
	}
}

func TestRecorders(t *testing.T) {
	RecordBootstrap("test-engine", time.Second, errors.New("boom"))
	if got := testutil.ToFloat64(bootstrapAttempts.WithLabelValues("test-engine", "error")); got < 1 {
		t.Errorf("bootstrap errors = %v", got)
	}

	RecordPlayback("", false)
	if got := testutil.ToFloat64(playbackResults.WithLabelValues("none", "error")); got < 1 {
		t.Errorf("playback errors = %v", got)
	}

	tests := map[int]string{200: "2xx", 302: "3xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusText(code); got != want {
			t.Errorf("statusText(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	RecordCleanupFailure()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "local_voice_cleanup_failures_total") {
		t.Error("cleanup counter missing from exposition")
	}
}
