// Package resolve turns a star or object identifier into its Gaia DR3 BP mean
// magnitude. Names are cross-matched through SIMBAD's identifier list; the
// magnitude comes from an asynchronous query against the Gaia archive.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/output"
	"github.com/large-farva/photometry-kit/internal/tap"
)

// Marker is the prefix of identifiers in the Gaia DR3 namespace.
const Marker = "Gaia DR3"

const gaiaQuery = `SELECT source_id, phot_bp_mean_mag FROM gaiadr3.gaia_source WHERE source_id = %s`

const simbadQuery = `SELECT ids.ids FROM ident JOIN ids ON ids.oidref = ident.oidref WHERE ident.id = %s`

// Querier runs a synchronous ADQL query.
type Querier interface {
	Query(ctx context.Context, adql string) (*tap.Table, error)
}

// AsyncQuerier runs an ADQL query as an asynchronous job and waits for it.
type AsyncQuerier interface {
	QueryAsync(ctx context.Context, adql string) (*tap.Table, error)
}

// Silencer suppresses client progress output until restore is called.
type Silencer interface {
	Silence() (restore func())
}

// Options holds everything the Resolver needs from the caller.
type Options struct {
	Simbad      Querier
	Gaia        AsyncQuerier
	Quiet       Silencer
	NameTimeout time.Duration // bound on the SIMBAD step; zero means 60s
}

// Resolver performs lookups. It holds no per-lookup state and is safe for
// concurrent use if its clients are.
type Resolver struct {
	simbad      Querier
	gaia        AsyncQuerier
	quiet       Silencer
	nameTimeout time.Duration
}

// Result is a successful lookup.
type Result struct {
	Identifier   string  `json:"identifier"`
	GaiaID       string  `json:"gaia_id"`
	BPMag        float64 `json:"phot_bp_mean_mag"`
	CrossMatched bool    `json:"cross_matched"` // false when the identifier was already a Gaia DR3 id
}

// New returns a Resolver using the given clients.
func New(opts Options) *Resolver {
	r := &Resolver{
		simbad:      opts.Simbad,
		gaia:        opts.Gaia,
		quiet:       opts.Quiet,
		nameTimeout: opts.NameTimeout,
	}
	if r.nameTimeout <= 0 {
		r.nameTimeout = 60 * time.Second
	}
	if r.quiet == nil {
		r.quiet = output.Progress
	}
	return r
}

// FromConfig builds a Resolver talking to the configured SIMBAD and Gaia
// services, with client progress routed through output.Progress.
func FromConfig(cfg config.Config) *Resolver {
	logger := output.Progress.Logger()
	simbad := tap.New(cfg.Simbad.URL, tap.WithLogger(logger.WithPrefix("simbad")))
	gaia := tap.New(cfg.Gaia.URL,
		tap.WithLogger(logger.WithPrefix("gaia")),
		tap.WithPolling(
			time.Duration(cfg.Gaia.PollIntervalMS)*time.Millisecond,
			time.Duration(cfg.Gaia.MaxPollIntervalMS)*time.Millisecond,
		),
	)
	output.Debug("catalog services", "simbad", simbad.BaseURL(), "gaia", gaia.BaseURL())
	return New(Options{
		Simbad:      simbad,
		Gaia:        gaia,
		Quiet:       output.Progress,
		NameTimeout: time.Duration(cfg.Simbad.TimeoutSeconds) * time.Second,
	})
}

// BPMag returns the BP mean magnitude of id, or false if it could not be
// resolved for any reason.
func (r *Resolver) BPMag(ctx context.Context, id string) (float64, bool) {
	res, err := r.Lookup(ctx, id)
	if err != nil {
		output.Debug("bp magnitude lookup failed", "id", id, "outcome", Outcome(err), "err", err)
		return 0, false
	}
	return res.BPMag, true
}

// Lookup resolves id and fetches its magnitude. The returned error wraps one
// of the package's sentinel errors.
func (r *Resolver) Lookup(ctx context.Context, id string) (Result, error) {
	res := Result{Identifier: id}

	gaiaID, crossMatched, err := r.GaiaID(ctx, id)
	if err != nil {
		return res, err
	}
	res.GaiaID = gaiaID
	res.CrossMatched = crossMatched

	var tbl *tap.Table
	err = r.silenced(func() error {
		var qerr error
		tbl, qerr = r.gaia.QueryAsync(ctx, fmt.Sprintf(gaiaQuery, gaiaID))
		return qerr
	})
	if err != nil {
		return res, classify("gaia query", err)
	}

	if tbl.Len() == 0 {
		return res, fmt.Errorf("gaia source %s: %w", gaiaID, ErrEmptyResult)
	}
	mag, ok, err := tbl.Float(0, "phot_bp_mean_mag")
	if err != nil {
		return res, fmt.Errorf("gaia source %s: %w: %v", gaiaID, ErrMalformedResponse, err)
	}
	if !ok {
		return res, fmt.Errorf("gaia source %s has no bp magnitude: %w", gaiaID, ErrEmptyResult)
	}

	res.BPMag = mag
	return res, nil
}

// GaiaID returns the numeric Gaia DR3 source id for id. Identifiers that
// already carry the marker are parsed locally; anything else is cross-matched
// through SIMBAD. crossMatched reports which path was taken.
func (r *Resolver) GaiaID(ctx context.Context, id string) (gaiaID string, crossMatched bool, err error) {
	if native, ok := ExtractID(id); ok {
		return native, false, checkSourceID(native)
	}

	ctx, cancel := context.WithTimeout(ctx, r.nameTimeout)
	defer cancel()

	var tbl *tap.Table
	err = r.silenced(func() error {
		var qerr error
		tbl, qerr = r.simbad.Query(ctx, fmt.Sprintf(simbadQuery, tap.Quote(id)))
		return qerr
	})
	if err != nil {
		return "", true, classify("simbad query", err)
	}
	if tbl.Len() == 0 {
		return "", true, fmt.Errorf("%q unknown to simbad: %w", id, ErrNotCatalogMember)
	}

	field, ok, err := tbl.Text(0, "ids")
	if err != nil {
		return "", true, fmt.Errorf("simbad ids for %q: %w: %v", id, ErrMalformedResponse, err)
	}
	if !ok {
		return "", true, fmt.Errorf("simbad ids for %q are null: %w", id, ErrMalformedResponse)
	}

	match, ok := FindGaiaID(ParseIDs(field))
	if !ok {
		return "", true, fmt.Errorf("%q: %w", id, ErrNotCatalogMember)
	}
	native, _ := ExtractID(match)
	return native, true, checkSourceID(native)
}

// silenced runs fn with client progress output suppressed. The restore func
// is deferred so output comes back on every exit path.
func (r *Resolver) silenced(fn func() error) error {
	defer r.quiet.Silence()()
	return fn()
}

// ExtractID returns the text after the first occurrence of Marker in s,
// trimmed of surrounding whitespace.
func ExtractID(s string) (string, bool) {
	_, after, found := strings.Cut(s, Marker)
	if !found {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// ParseIDs splits a SIMBAD ids field into identifiers. Newlines and hyphens
// are stripped before splitting on '|'.
func ParseIDs(field string) []string {
	field = strings.ReplaceAll(field, "\n", "")
	field = strings.ReplaceAll(field, "-", "")
	return strings.Split(field, "|")
}

// FindGaiaID returns the first identifier containing Marker.
func FindGaiaID(ids []string) (string, bool) {
	for _, id := range ids {
		if strings.Contains(id, Marker) {
			return id, true
		}
	}
	return "", false
}

// checkSourceID rejects anything that is not an unsigned decimal integer, so
// only well-formed ids reach the ADQL text.
func checkSourceID(id string) error {
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return fmt.Errorf("gaia source id %q: %w", id, ErrMalformedResponse)
	}
	return nil
}

// classify wraps a client error in the matching sentinel.
func classify(step string, err error) error {
	if errors.Is(err, tap.ErrDecode) {
		return fmt.Errorf("%s: %w: %v", step, ErrMalformedResponse, err)
	}
	return fmt.Errorf("%s: %w: %v", step, ErrNetwork, err)
}
