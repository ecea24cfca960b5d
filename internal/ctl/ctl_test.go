package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/photometry-kit/internal/app"
	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/fitsimg"
	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/resolve"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

type fakeLookuper struct {
	res resolve.Result
	err error
}

func (f fakeLookuper) Lookup(_ context.Context, id string) (resolve.Result, error) {
	res := f.res
	res.Identifier = id
	return res, f.err
}

func ptr(v float64) *float64 { return &v }

func daemon(t *testing.T, l app.Lookuper) *httptest.Server {
	t.Helper()
	a := app.New(app.Options{Cfg: config.Default(), Resolver: l})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestBPMag_Found(t *testing.T) {
	out := captureOutput(t)
	l := fakeLookuper{res: resolve.Result{GaiaID: "123", BPMag: 11.25, CrossMatched: true}}

	require.NoError(t, BPMag(context.Background(), l, BPMagOptions{ID: "Vega"}))
	assert.Contains(t, out.String(), "11.2500")
	assert.Contains(t, out.String(), "via SIMBAD")
}

func TestBPMag_NotFound(t *testing.T) {
	out := captureOutput(t)
	l := fakeLookuper{err: fmt.Errorf("x: %w", resolve.ErrNotCatalogMember)}

	err := BPMag(context.Background(), l, BPMagOptions{ID: "Vega", JSON: true})
	require.ErrorIs(t, err, ErrNoMagnitude)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
	assert.Equal(t, false, reply["ok"])
	assert.Nil(t, reply["phot_bp_mean_mag"])
	assert.Equal(t, "not_member", reply["outcome"])
}

func TestBPMagRemote(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		out := captureOutput(t)
		srv := daemon(t, fakeLookuper{res: resolve.Result{GaiaID: "42", BPMag: 9.5}})

		require.NoError(t, BPMagRemote(srv.URL, BPMagOptions{ID: "Gaia DR3 42", JSON: true}))
		var reply lookupReply
		require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
		require.NotNil(t, reply.BPMag)
		assert.Equal(t, 9.5, *reply.BPMag)
		assert.Equal(t, "Gaia DR3 42", reply.Identifier)
	})

	t.Run("empty", func(t *testing.T) {
		out := captureOutput(t)
		srv := daemon(t, fakeLookuper{err: resolve.ErrEmptyResult})

		err := BPMagRemote(srv.URL, BPMagOptions{ID: "Gaia DR3 42"})
		require.ErrorIs(t, err, ErrNoMagnitude)
		assert.Contains(t, out.String(), "none")
	})

	t.Run("not json", func(t *testing.T) {
		captureOutput(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := BPMagRemote(srv.URL, BPMagOptions{ID: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 500")
	})
}

func TestConstAdd(t *testing.T) {
	out := captureOutput(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "frame.fits")
	require.NoError(t, fitsimg.Write(in, &fitsimg.Image{
		Bitpix: 16,
		Axes:   []int{2, 2},
		Data:   []int16{1, 2, 3, 4},
	}))

	require.NoError(t, ConstAdd(ConstAddOptions{Input: in, Offset: 100}))
	assert.Contains(t, out.String(), filepath.Join(dir, fitsimg.DefaultOutputName))

	img, err := fitsimg.Read(filepath.Join(dir, fitsimg.DefaultOutputName))
	require.NoError(t, err)
	assert.Equal(t, []int16{101, 102, 103, 104}, img.Data)
}

func TestConstAdd_MissingInput(t *testing.T) {
	captureOutput(t)
	err := ConstAdd(ConstAddOptions{Input: filepath.Join(t.TempDir(), "nope.fits"), Offset: 100})
	assert.Error(t, err)
}

func TestNoise_Plain(t *testing.T) {
	out := captureOutput(t)
	opts := NoiseOptions{
		Instrument: noise.DefaultInstrument(),
		Moon:       ptr(10),
		Airmass:    ptr(1.2),
		Mag:        ptr(12),
	}
	require.NoError(t, Noise(opts))
	assert.Equal(t, fmt.Sprintf("%g\n", noise.HourlyNoisePPM(10, 1.2, 12, 30)), out.String())
}

func TestNoise_Breakdown(t *testing.T) {
	out := captureOutput(t)
	opts := NoiseOptions{
		Instrument: noise.DefaultInstrument(),
		Moon:       ptr(50),
		Airmass:    ptr(1),
		Mag:        ptr(15),
		Exposure:   ptr(60),
		Breakdown:  true,
	}
	require.NoError(t, Noise(opts))
	assert.Contains(t, out.String(), "654.3 ppm")
	assert.Contains(t, out.String(), "10 px (ZP 24)")
}

func TestNoiseOptions_Conditions(t *testing.T) {
	full := time.Date(2024, 1, 25, 18, 0, 0, 0, time.UTC)

	c, err := NoiseOptions{Mag: ptr(12), At: full, Altitudes: []float64{90, 30}}.conditions()
	require.NoError(t, err)
	assert.InDelta(t, 4.5, c.MeanCubedAirmass, 1e-9)
	assert.Greater(t, c.MoonPercent, 98.0)
	assert.Equal(t, noise.DefaultExposure, c.Exposure)

	c, err = NoiseOptions{Mag: ptr(12), Moon: ptr(5), Airmass: ptr(2), Altitudes: []float64{10}, Exposure: ptr(45)}.conditions()
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.MoonPercent)
	assert.Equal(t, 2.0, c.MeanCubedAirmass)
	assert.Equal(t, 45.0, c.Exposure)

	c, err = NoiseOptions{Mag: ptr(12), Moon: ptr(5), Airmass: ptr(2), Exposure: ptr(0)}.conditions()
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Exposure, "an explicit zero exposure is not replaced by the default")

	_, err = NoiseOptions{Moon: ptr(5), Airmass: ptr(2)}.conditions()
	assert.EqualError(t, err, "--mag is required")

	_, err = NoiseOptions{Mag: ptr(12), Moon: ptr(5)}.conditions()
	assert.EqualError(t, err, "one of --airmass or --alt is required")
}

func TestAirmass(t *testing.T) {
	out := captureOutput(t)
	require.NoError(t, Airmass(AirmassOptions{Altitudes: []float64{90, 30}, JSON: true}))

	var resp struct {
		Airmass []float64 `json:"airmass"`
		Mean    float64   `json:"mean_cubed_airmass"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Airmass, 2)
	assert.InDelta(t, 1.0, resp.Airmass[0], 1e-12)
	assert.InDelta(t, 2.0, resp.Airmass[1], 1e-12)
	assert.InDelta(t, 4.5, resp.Mean, 1e-9)

	assert.Error(t, Airmass(AirmassOptions{}))
}

func TestAirmass_HorizonJSON(t *testing.T) {
	out := captureOutput(t)

	err := Airmass(AirmassOptions{Altitudes: []float64{45, 0}, JSON: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infinite at altitude 0°")
	assert.NotContains(t, err.Error(), "unsupported value")
	assert.Empty(t, out.String())

	require.NoError(t, Airmass(AirmassOptions{Altitudes: []float64{0}}))
	assert.Contains(t, out.String(), "+Inf")
}

func TestNoise_NonFiniteJSON(t *testing.T) {
	tests := []struct {
		name string
		opts NoiseOptions
	}{
		{"zero exposure", NoiseOptions{Moon: ptr(10), Airmass: ptr(1.2), Mag: ptr(12), Exposure: ptr(0)}},
		{"horizon", NoiseOptions{Moon: ptr(10), Altitudes: []float64{0}, Mag: ptr(12)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t)
			tt.opts.Instrument = noise.DefaultInstrument()
			tt.opts.JSON = true

			err := Noise(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "use text output")
			assert.NotContains(t, err.Error(), "unsupported value")
			assert.Empty(t, out.String())
		})
	}
}

func TestPrintJSON_Unsupported(t *testing.T) {
	captureOutput(t)
	err := printJSON(map[string]float64{"x": math.Inf(-1)})
	assert.EqualError(t, err, "result contains -Inf, which JSON cannot represent; use text output")
}

func TestMoon(t *testing.T) {
	out := captureOutput(t)
	at := time.Date(2024, 1, 25, 18, 0, 0, 0, time.UTC)
	require.NoError(t, Moon(MoonOptions{At: at, Instrument: noise.DefaultInstrument(), JSON: true}))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "bright", resp["sky_band"])
	assert.Equal(t, 300.0, resp["sky_rate"])
	assert.Equal(t, "2024-01-25T18:00:00Z", resp["at"])
}

func TestSkyBand(t *testing.T) {
	assert.Equal(t, "dark", skyBand(24.999))
	assert.Equal(t, "grey", skyBand(25))
	assert.Equal(t, "grey", skyBand(74.999))
	assert.Equal(t, "bright", skyBand(75))
}

func TestDaemonCommands(t *testing.T) {
	srv := daemon(t, fakeLookuper{})

	t.Run("status", func(t *testing.T) {
		out := captureOutput(t)
		require.NoError(t, Status(srv.URL, false))
		assert.Contains(t, out.String(), "PHOTOMETRYD STATUS")
		assert.Contains(t, out.String(), "BOOTING")
		assert.Contains(t, out.String(), "w1m")
	})

	t.Run("health", func(t *testing.T) {
		out := captureOutput(t)
		require.NoError(t, Health(srv.URL, true))
		assert.JSONEq(t, fmt.Sprintf(`{"healthy":true,"url":%q}`, srv.URL), out.String())
	})

	t.Run("version", func(t *testing.T) {
		out := captureOutput(t)
		require.NoError(t, VersionInfo(srv.URL, false))
		assert.Contains(t, out.String(), "Daemon")
		assert.NotContains(t, out.String(), "unreachable")
	})

	t.Run("config", func(t *testing.T) {
		out := captureOutput(t)
		require.NoError(t, Config(srv.URL, false))
		assert.Contains(t, out.String(), "[instrument]")
		assert.Contains(t, out.String(), config.Default().Gaia.URL)
	})
}

func TestHealth_Unreachable(t *testing.T) {
	out := captureOutput(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	require.NoError(t, Health(url, true))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, false, resp["healthy"])
	assert.NotEmpty(t, resp["error"])
}

func TestLocalConfig(t *testing.T) {
	out := captureOutput(t)
	require.NoError(t, LocalConfig(config.Default(), false))
	assert.Contains(t, out.String(), "LOCAL CONFIGURATION")
	assert.Contains(t, out.String(), "const_added.fits")
}

func TestWSURL(t *testing.T) {
	u, err := wsURL("http://127.0.0.1:8090/")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8090/ws", u)

	u, err = wsURL("https://obs.example/api?x=1")
	require.NoError(t, err)
	assert.Equal(t, "wss://obs.example/ws", u)

	_, err = wsURL("ftp://obs.example")
	assert.Error(t, err)
}

func TestWanted(t *testing.T) {
	filter := map[string]bool{"lookup": true}
	assert.True(t, wanted(nil, []byte(`{"type":"noise"}`)))
	assert.True(t, wanted(filter, []byte(`{"type":"lookup"}`)))
	assert.False(t, wanted(filter, []byte(`{"type":"noise"}`)))
	assert.True(t, wanted(filter, []byte(`not json`)))
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"lookup ok", `{"type":"lookup","identifier":"Vega","outcome":"ok","phot_bp_mean_mag":0.03,"duration_ms":1500}`, []string{"Vega", "BP 0.0300", "1.5s"}},
		{"lookup failed", `{"type":"lookup","identifier":"Foo","outcome":"not_member","duration_ms":20}`, []string{"Foo", "not_member"}},
		{"noise", `{"type":"noise","hourly_ppm":86.28,"moon":10,"airmass":1.2,"mag":12}`, []string{"86.3 ppm/h", "mag 12"}},
		{"state", `{"type":"state","from":"IDLE","to":"RESOLVING"}`, []string{"STATE", "IDLE", "RESOLVING"}},
		{"log", `{"type":"log","level":"warn","message":"lookup failed","component":"photometryd"}`, []string{"WARN", "[photometryd]", "lookup failed"}},
		{"heartbeat", `{"type":"heartbeat","state":"IDLE","uptime_seconds":75,"lookups":3}`, []string{"heartbeat", "1m 15s", "3 lookups"}},
		{"unknown", `{"type":"other","x":1}`, []string{`"x": 1`}},
		{"not json", `garbage`, []string{"garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t)
			renderEvent([]byte(tt.raw))
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "2h 14m 8s", formatDuration(2*time.Hour+14*time.Minute+8*time.Second))
}
