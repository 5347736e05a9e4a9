package event

import (
	"errors"
	"strconv"
	"time"
)

var (
	errInvalidUTF8    = errors.New("invalid UTF-8 in input line")
	errEmptyTimestamp = errors.New("missing timestamp")
)

// timestampLayouts are tried in order; adapters are expected to emit
// RFC3339 with millisecond precision but replay fixtures sometimes carry
// bare epoch-millis.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, errors.New("unrecognized timestamp format: " + s)
}
