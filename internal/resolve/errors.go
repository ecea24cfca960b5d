package resolve

import "errors"

// Sentinel errors for the ways a lookup can fail. Every error returned by
// Lookup wraps exactly one of them.
var (
	// ErrNotCatalogMember indicates the object has no Gaia DR3 identifier.
	ErrNotCatalogMember = errors.New("no Gaia DR3 identifier")

	// ErrNetwork indicates a transport failure or a service-side error.
	ErrNetwork = errors.New("catalog service unavailable")

	// ErrMalformedResponse indicates a response or identifier that could not
	// be interpreted.
	ErrMalformedResponse = errors.New("malformed catalog response")

	// ErrEmptyResult indicates the catalog returned no row, or a null
	// magnitude, for the source.
	ErrEmptyResult = errors.New("empty catalog result")
)

// Outcome names the failure class of err for metrics and events. A nil error
// is "ok".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotCatalogMember):
		return "not_member"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrEmptyResult):
		return "empty"
	default:
		return "network"
	}
}
