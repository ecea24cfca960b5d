package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/large-farva/photometry-kit/internal/resolve"
)

// ErrNoMagnitude is returned when an identifier does not resolve to a
// magnitude. photctl exits non-zero on it.
var ErrNoMagnitude = errors.New("no magnitude")

// Lookuper resolves an identifier to its magnitude.
type Lookuper interface {
	Lookup(ctx context.Context, id string) (resolve.Result, error)
}

// BPMagOptions controls the bp-mag command.
type BPMagOptions struct {
	ID   string
	JSON bool
}

// lookupReply is the bp-mag output, shared with the daemon's /api/bp-mag.
type lookupReply struct {
	OK           bool     `json:"ok"`
	Identifier   string   `json:"identifier"`
	GaiaID       string   `json:"gaia_id,omitempty"`
	BPMag        *float64 `json:"phot_bp_mean_mag"`
	CrossMatched bool     `json:"cross_matched"`
	Outcome      string   `json:"outcome,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BPMag resolves opts.ID locally and prints its BP mean magnitude.
func BPMag(ctx context.Context, l Lookuper, opts BPMagOptions) error {
	res, err := l.Lookup(ctx, opts.ID)

	reply := lookupReply{
		OK:           err == nil,
		Identifier:   opts.ID,
		GaiaID:       res.GaiaID,
		CrossMatched: res.CrossMatched,
	}
	if err == nil {
		mag := res.BPMag
		reply.BPMag = &mag
	} else {
		reply.Outcome = resolve.Outcome(err)
		reply.Error = err.Error()
	}
	return printLookup(reply, opts.JSON)
}

// BPMagRemote asks the daemon at baseURL to resolve opts.ID.
func BPMagRemote(baseURL string, opts BPMagOptions) error {
	path := "/api/bp-mag?id=" + url.QueryEscape(opts.ID)
	status, body, err := getRaw(lookupClient, strings.TrimRight(baseURL, "/"), path)
	if err != nil {
		return err
	}

	var reply lookupReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	return printLookup(reply, opts.JSON)
}

func printLookup(reply lookupReply, jsonOutput bool) error {
	var failure error
	if reply.BPMag == nil {
		failure = fmt.Errorf("%s: %w", reply.Identifier, ErrNoMagnitude)
	}

	if jsonOutput {
		if err := printJSON(reply); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  BP MEAN MAGNITUDE"))
	fmt.Fprintln(stdout, rule(38))
	row("Identifier", reply.Identifier)
	if reply.GaiaID != "" {
		via := "direct"
		if reply.CrossMatched {
			via = "via SIMBAD"
		}
		row("Gaia DR3", reply.GaiaID+" "+colorize(dim, "("+via+")"))
	}
	if reply.BPMag != nil {
		row("BP mag", colorize(green, fmt.Sprintf("%.4f", *reply.BPMag)))
	} else {
		row("BP mag", colorize(outcomeColor(reply.Outcome), "none"))
		if reply.Error != "" {
			row("Reason", colorize(dim, reply.Error))
		}
	}
	fmt.Fprintln(stdout)

	return failure
}
