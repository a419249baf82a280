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
)

func TestObserveRender(t *testing.T) {
	m := New()

	m.ObserveRender(nil, 2*time.Millisecond)
	m.ObserveRender(nil, 3*time.Millisecond)
	m.ObserveRender(errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Renders.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Renders.WithLabelValues(StatusError)))
}

func TestObserveBundleBuild(t *testing.T) {
	m := New()

	m.ObserveBundleBuild(nil)
	m.ObserveBundleBuild(errors.New("bad css"))
	m.ObserveBundleBuild(errors.New("bad css"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BundleBuilds.WithLabelValues(ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BundleBuilds.WithLabelValues(ResultError)))
}

func TestLiveReload(t *testing.T) {
	m := New()

	m.SetLiveReloadClients(3)
	m.IncLiveReloadBroadcasts()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveReloadClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveReloadBroadcasts))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRender(nil, time.Second)
		m.ObserveBundleBuild(nil)
		m.SetLiveReloadClients(1)
		m.IncLiveReloadBroadcasts()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRender(nil, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `docshell_renders_total{status="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
