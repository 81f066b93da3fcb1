package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("POST", "/query", 200, 20*time.Millisecond)
	m.Upload(true)
	m.Upload(false)
	m.Query("collection", true)
	m.Query("", false)
	m.Annotation("reaction")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `pythagorean_http_requests_total{method="POST",route="/query",status="200"} 1`)
	assert.Contains(t, out, `pythagorean_uploads_total{outcome="failure"} 1`)
	assert.Contains(t, out, `pythagorean_queries_total{link_type="unknown",outcome="failure"} 1`)
	assert.Contains(t, out, `pythagorean_annotations_total{kind="reaction"} 1`)
	assert.Contains(t, out, "pythagorean_goroutines")
}
