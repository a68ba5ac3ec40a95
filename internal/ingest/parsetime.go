package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/clpgo/clpcore/internal/clperr"
)

// Special timestamp layouts understood alongside Go time layouts.
const (
	// LayoutUnix expects whole seconds since the epoch.
	LayoutUnix = "UNIX"
	// LayoutUnixMillis expects whole milliseconds since the epoch.
	LayoutUnixMillis = "UNIX_MILLIS"
	// LayoutUnixDecimalNanos expects "<seconds>.<nanos>".
	LayoutUnixDecimalNanos = "UNIX_DECIMAL_NANOS"
)

// ParseTime parses a matched timestamp token. layout is a Go time layout
// or one of the special layouts above. An empty layout falls back to
// best-effort sniffing via dateparse. A value that does not fit the
// layout is a clperr.BadParam: the token matched the timestamp rule, so
// a parse failure means the schema's pattern and layout disagree.
func ParseTime(layout string, value string) (time.Time, error) {
	switch layout {
	case LayoutUnix:
		secs, err := parseEpoch(value, "seconds")
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0), nil
	case LayoutUnixMillis:
		millis, err := parseEpoch(value, "milliseconds")
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(millis), nil
	case LayoutUnixDecimalNanos:
		secText, nanoText, found := strings.Cut(value, ".")
		if !found {
			return time.Time{}, fmt.Errorf("%w: timestamp %q has no '.' between seconds and nanoseconds", clperr.BadParam, value)
		}
		secs, err := parseEpoch(secText, "seconds")
		if err != nil {
			return time.Time{}, err
		}
		nanos, err := parseEpoch(nanoText, "nanoseconds")
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, nanos), nil
	case "":
		ts, err := dateparse.ParseAny(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cannot sniff a timestamp from %q: %v", clperr.BadParam, value, err)
		}
		return ts, nil
	default:
		ts, err := time.Parse(layout, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q does not fit layout %q: %v", clperr.BadParam, value, layout, err)
		}
		return ts, nil
	}
}

func parseEpoch(text, unit string) (int64, error) {
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q is not a whole number of %s: %v", clperr.BadParam, text, unit, err)
	}
	return i, nil
}
