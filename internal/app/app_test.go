package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/metrics"
	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/resolve"
)

type fakeLookuper struct {
	mu    sync.Mutex
	calls []string
	res   resolve.Result
	err   error
	block chan struct{}
}

func (f *fakeLookuper) Lookup(ctx context.Context, id string) (resolve.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return resolve.Result{Identifier: id}, ctx.Err()
		}
	}
	res := f.res
	res.Identifier = id
	return res, f.err
}

func newTestApp(t *testing.T, l Lookuper) (*App, *metrics.Collector, *httptest.Server) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	a := New(Options{Cfg: config.Default(), Resolver: l, Metrics: m})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, m, srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestApp(t, &fakeLookuper{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(b))
}

func TestStatusAndVersion(t *testing.T) {
	_, _, srv := newTestApp(t, &fakeLookuper{})

	code, body := getJSON(t, srv.URL+"/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "photometry-kit", body["name"])
	assert.Equal(t, StateBooting, body["state"])
	assert.Equal(t, "w1m", body["instrument"])

	code, body = getJSON(t, srv.URL+"/api/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, Version, body["version"])
}

func TestConfigEndpoint(t *testing.T) {
	_, _, srv := newTestApp(t, &fakeLookuper{})

	code, body := getJSON(t, srv.URL+"/api/config")
	assert.Equal(t, http.StatusOK, code)
	simbad, ok := body["simbad"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, config.Default().Simbad.URL, simbad["url"])
}

func TestBPMag_Success(t *testing.T) {
	l := &fakeLookuper{res: resolve.Result{GaiaID: "4472832130942575872", BPMag: 10.5, CrossMatched: true}}
	a, m, srv := newTestApp(t, l)

	code, body := getJSON(t, srv.URL+"/api/bp-mag?id=Barnard%27s+star")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Barnard's star", body["identifier"])
	assert.Equal(t, 10.5, body["phot_bp_mean_mag"])
	assert.Equal(t, "4472832130942575872", body["gaia_id"])

	assert.Equal(t, []string{"Barnard's star"}, l.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("ok")))
	assert.Equal(t, int64(1), a.lookups.Load())
}

func TestBPMag_Failures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantOutcome string
	}{
		{"not member", fmt.Errorf("x: %w", resolve.ErrNotCatalogMember), http.StatusNotFound, "not_member"},
		{"empty", fmt.Errorf("x: %w", resolve.ErrEmptyResult), http.StatusNotFound, "empty"},
		{"malformed", fmt.Errorf("x: %w", resolve.ErrMalformedResponse), http.StatusBadGateway, "malformed"},
		{"network", fmt.Errorf("x: %w", resolve.ErrNetwork), http.StatusBadGateway, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m, srv := newTestApp(t, &fakeLookuper{err: tt.err})

			code, body := getJSON(t, srv.URL+"/api/bp-mag?id=foo")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantOutcome, body["outcome"])
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues(tt.wantOutcome)))
		})
	}
}

func TestBPMag_BadRequests(t *testing.T) {
	l := &fakeLookuper{}
	_, _, srv := newTestApp(t, l)

	code, body := getJSON(t, srv.URL+"/api/bp-mag")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "id parameter required", body["error"])

	resp, err := http.Post(srv.URL+"/api/bp-mag?id=foo", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	assert.Empty(t, l.calls)
}

func TestBPMag_StateWhileResolving(t *testing.T) {
	l := &fakeLookuper{block: make(chan struct{}), res: resolve.Result{BPMag: 12}}
	a, _, srv := newTestApp(t, l)
	a.transition(StateIdle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get(srv.URL + "/api/bp-mag?id=Gaia+DR3+1")
		if err == nil {
			resp.Body.Close()
		}
	}()

	require.Eventually(t, func() bool { return a.State() == StateResolving }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, a.inFlight())

	close(l.block)
	<-done
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 0, a.inFlight())
}

func TestNoise(t *testing.T) {
	_, m, srv := newTestApp(t, &fakeLookuper{})

	code, body := getJSON(t, srv.URL+"/api/noise?moon=10&airmass=1.2&mag=12")
	require.Equal(t, http.StatusOK, code)

	b, ok := body["breakdown"].(map[string]any)
	require.True(t, ok)
	assert.InEpsilon(t, noise.HourlyNoisePPM(10, 1.2, 12, 30), b["hourly_ppm"], 1e-12)

	c, ok := body["conditions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 30.0, c["exposure"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoiseEstimates))

	code, body = getJSON(t, srv.URL+"/api/noise?moon=50&airmass=1&mag=15&exposure=60")
	require.Equal(t, http.StatusOK, code)
	b = body["breakdown"].(map[string]any)
	assert.InEpsilon(t, 654.3313292336835, b["hourly_ppm"], 1e-9)
}

func TestNoise_BadRequests(t *testing.T) {
	_, m, srv := newTestApp(t, &fakeLookuper{})

	tests := []struct {
		query    string
		wantCode int
		wantErr  string
	}{
		{"airmass=1.2&mag=12", http.StatusBadRequest, "moon parameter required"},
		{"moon=x&airmass=1.2&mag=12", http.StatusBadRequest, "moon: not a number"},
		{"moon=10&mag=12", http.StatusBadRequest, "airmass parameter required"},
		{"moon=10&airmass=1.2", http.StatusBadRequest, "mag parameter required"},
		{"moon=10&airmass=1.2&mag=12&exposure=0", http.StatusBadRequest, "exposure must be positive"},
		{"moon=10&airmass=-1&mag=12", http.StatusUnprocessableEntity, "not finite"},
		{"moon=NaN&airmass=1.2&mag=12", http.StatusBadRequest, "moon: must be finite"},
		{"moon=Inf&airmass=1.2&mag=12", http.StatusBadRequest, "moon: must be finite"},
		{"moon=10&airmass=1.2&mag=Inf", http.StatusBadRequest, "mag: must be finite"},
		{"moon=10&airmass=-Inf&mag=12", http.StatusBadRequest, "airmass: must be finite"},
		{"moon=10&airmass=1.2&mag=12&exposure=NaN", http.StatusBadRequest, "exposure: must be finite"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, body := getJSON(t, srv.URL+"/api/noise?"+tt.query)
			assert.Equal(t, tt.wantCode, code)
			msg, _ := body["error"].(string)
			assert.Contains(t, msg, tt.wantErr)
		})
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.NoiseEstimates))
}

func TestWriteJSON_Unencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"v": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, srv := newTestApp(t, &fakeLookuper{err: resolve.ErrNetwork})

	resp, err := http.Get(srv.URL + "/api/bp-mag?id=foo")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), `bpmag_lookups_total{outcome="network"} 1`))
}

func TestRun_Shutdown(t *testing.T) {
	a := New(Options{Cfg: config.Default(), Bind: "127.0.0.1:0", Resolver: &fakeLookuper{}})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.State() == StateIdle }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, http.ErrServerClosed), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
